// Package event はプッシュ配信の結果を外部へ通知するイベントを定義する。
//
// 配信の完了・失敗やプッシュトークンの登録・削除をイベントとして表現し、
// 設定されたイベントシンクへJSONで送信する。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeNotification は通知エンティティを表す。
	AggregateTypeNotification AggregateType = "Notification"
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeNotificationDispatched は通知の全チャンクの送信が完了したことを表す。
	TypeNotificationDispatched Type = "NotificationDispatched"
	// TypeNotificationDispatchFailed は通知の送信がチャンク単位で失敗したことを表す。
	TypeNotificationDispatchFailed Type = "NotificationDispatchFailed"
	// TypeTestNotificationSent はテスト通知が送信されたことを表す。
	TypeTestNotificationSent Type = "TestNotificationSent"

	// TypePushTokenRegistered はプッシュトークンが登録されたことを表す。
	TypePushTokenRegistered Type = "PushTokenRegistered"
	// TypePushTokenRemoved はプッシュトークンが削除されたことを表す。
	TypePushTokenRemoved Type = "PushTokenRemoved"
)

// Event は外部へ通知する不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// NotificationDispatchedData はNotificationDispatchedイベントのデータ。
type NotificationDispatchedData struct {
	// DispatchID は送信処理の識別子。
	DispatchID string `json:"dispatch_id"`
	// SentCount は送信したメッセージ数。
	SentCount int `json:"sent_count"`
	// ChunkCount は送信したチャンク数。
	ChunkCount int `json:"chunk_count"`
	// FailedTickets はゲートウェイがerrorを返したチケット数。
	FailedTickets int `json:"failed_tickets"`
}

// NotificationDispatchFailedData はNotificationDispatchFailedイベントのデータ。
type NotificationDispatchFailedData struct {
	// DispatchID は送信処理の識別子。
	DispatchID string `json:"dispatch_id"`
	// ChunkIndex は失敗したチャンクの位置（0始まり）。
	ChunkIndex int `json:"chunk_index"`
	// ChunkSize は失敗したチャンクのメッセージ数。
	ChunkSize int `json:"chunk_size"`
	// Reason は失敗の理由。
	Reason string `json:"reason"`
}

// TestNotificationSentData はTestNotificationSentイベントのデータ。
type TestNotificationSentData struct {
	// UserID はテスト通知を送信したユーザーのID。
	UserID int64 `json:"user_id"`
	// Status はゲートウェイが返したチケットの状態。
	Status string `json:"status"`
}

// PushTokenChangedData はプッシュトークンの登録・削除イベントのデータ。
// トークン自体は含めず、変更後の件数のみを通知する。
type PushTokenChangedData struct {
	// TokenCount は変更後のトークン数。
	TokenCount int `json:"token_count"`
}
