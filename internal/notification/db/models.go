package db

import (
	"database/sql"
	"time"
)

// User はusersテーブルの行。
type User struct {
	ID         int64
	Email      string
	PushTokens sql.NullString
	CreatedAt  time.Time
}

// Notification はnotificationsテーブルの行。
type Notification struct {
	ID              int64
	UserID          int64
	Title           string
	Message         string
	ImageUrl        sql.NullString
	DeepLinkType    sql.NullString
	DeepLinkValue   sql.NullString
	RecipientType   string
	RecipientUserID sql.NullInt64
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NotificationHistory はnotification_historyテーブルの行。
type NotificationHistory struct {
	ID             int64
	NotificationID int64
	DispatchID     string
	PushToken      string
	DeliveryStatus string
	ErrorMessage   sql.NullString
	TicketID       sql.NullString
	SentAt         time.Time
}
