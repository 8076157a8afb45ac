package dispatch

import (
	"context"

	"github.com/nao1215/pushfan/pkg/pushgateway"
)

// RecipientType は通知の宛先の種類。
type RecipientType string

const (
	// RecipientAll は全ユーザー宛て。
	RecipientAll RecipientType = "all"
	// RecipientSpecific は特定ユーザー宛て。
	RecipientSpecific RecipientType = "specific"
	// RecipientGroup はグループ宛て。
	RecipientGroup RecipientType = "group"
)

// Valid は既知の宛先種別かを返す。
func (r RecipientType) Valid() bool {
	switch r {
	case RecipientAll, RecipientSpecific, RecipientGroup:
		return true
	}
	return false
}

// Status は通知の状態。
type Status string

const (
	// StatusDraft は作成直後の状態。
	StatusDraft Status = "draft"
	// StatusScheduled は直接編集で設定される予約状態。
	StatusScheduled Status = "scheduled"
	// StatusSending は送信処理が確保中の状態。
	StatusSending Status = "sending"
	// StatusSent は送信済みの終端状態。
	StatusSent Status = "sent"
)

// Dispatchable は送信を開始できる状態かを返す。
func (s Status) Dispatchable() bool {
	return s == StatusDraft || s == StatusScheduled
}

// Notification は送信対象の通知。空文字の任意項目は未設定を表す。
type Notification struct {
	ID              int64
	OwnerUserID     int64
	Title           string
	Message         string
	ImageURL        string
	DeepLinkType    string
	DeepLinkValue   string
	RecipientType   RecipientType
	RecipientUserID int64
	Status          Status
}

// HistoryEntry は配信履歴の1行。
type HistoryEntry struct {
	NotificationID int64
	DispatchID     string
	PushToken      string
	Status         pushgateway.TicketStatus
	ErrorMessage   string
	TicketID       string
}

// TokenSource はユーザーのプッシュトークンを参照する。
type TokenSource interface {
	// AllTokens はトークンを持つ全ユーザーのトークンを平坦化して返す。
	AllTokens(ctx context.Context) ([]string, error)
	// UserTokens は指定ユーザーのトークンを返す。ユーザーが存在しない場合は ErrUserNotFound。
	UserTokens(ctx context.Context, userID int64) ([]string, error)
}

// NotificationStore は通知の取得と状態遷移を行う。
type NotificationStore interface {
	// GetNotification は通知を返す。存在しない場合は ErrNotificationNotFound。
	GetNotification(ctx context.Context, id int64) (*Notification, error)
	// ClaimNotification はdraft/scheduledをsendingへ遷移させる。遷移できなかった場合はfalse。
	ClaimNotification(ctx context.Context, id int64) (bool, error)
	// CompleteNotification はsendingをsentへ遷移させる。
	CompleteNotification(ctx context.Context, id int64) error
	// ReleaseNotification はsendingを指定の状態へ戻す。
	ReleaseNotification(ctx context.Context, id int64, to Status) error
}

// HistoryRecorder は配信履歴を追記する。
type HistoryRecorder interface {
	Record(ctx context.Context, entry HistoryEntry) error
}
