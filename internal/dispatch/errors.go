package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotificationNotFound は通知が存在しない場合のエラー。
	ErrNotificationNotFound = errors.New("通知が見つかりません")
	// ErrUserNotFound はユーザーが存在しない場合のエラー。
	ErrUserNotFound = errors.New("ユーザーが見つかりません")
	// ErrAlreadySent は送信済みの通知を再送しようとした場合のエラー。
	ErrAlreadySent = errors.New("通知は送信済みです")
	// ErrDispatchInProgress は他の送信処理が通知を確保している場合のエラー。
	ErrDispatchInProgress = errors.New("通知は送信処理中です")
	// ErrUnsupportedRecipient は扱えない宛先種別の場合のエラー。
	ErrUnsupportedRecipient = errors.New("対応していない宛先種別です")
)

// ChunkError はチャンクの送信失敗を表す。
type ChunkError struct {
	// Index は失敗したチャンクの位置（0始まり）。
	Index int
	// Size は失敗したチャンクのメッセージ数。
	Size int
	// Err はゲートウェイが返したエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *ChunkError) Error() string {
	return fmt.Sprintf("チャンク%d（%d件）の送信に失敗: %v", e.Index, e.Size, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *ChunkError) Unwrap() error {
	return e.Err
}
