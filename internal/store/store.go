package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/pushfan/internal/dispatch"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
)

// Store はSQLite上のプッシュ配信データへのアクセスを提供する。
// dispatch.TokenSource、dispatch.NotificationStore、dispatch.HistoryRecorder を満たす。
type Store struct {
	db      *sql.DB
	queries *notificationdb.Queries
}

// New は新しいStoreを生成する。
func New(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB, queries: notificationdb.New(sqlDB)}
}

// DB はデータベース接続を返す。
func (s *Store) DB() *sql.DB {
	return s.db
}

// Queries は低レベルのクエリ実行オブジェクトを返す。
func (s *Store) Queries() *notificationdb.Queries {
	return s.queries
}

// ToDispatchNotification はDB行を送信処理用の通知に変換する。
func ToDispatchNotification(n notificationdb.Notification) *dispatch.Notification {
	return &dispatch.Notification{
		ID:              n.ID,
		OwnerUserID:     n.UserID,
		Title:           n.Title,
		Message:         n.Message,
		ImageURL:        n.ImageUrl.String,
		DeepLinkType:    n.DeepLinkType.String,
		DeepLinkValue:   n.DeepLinkValue.String,
		RecipientType:   dispatch.RecipientType(n.RecipientType),
		RecipientUserID: n.RecipientUserID.Int64,
		Status:          dispatch.Status(n.Status),
	}
}

// GetNotification は通知を返す。
func (s *Store) GetNotification(ctx context.Context, id int64) (*dispatch.Notification, error) {
	n, err := s.queries.GetNotification(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dispatch.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return ToDispatchNotification(n), nil
}

// ClaimNotification は通知をsendingへ遷移させる。
func (s *Store) ClaimNotification(ctx context.Context, id int64) (bool, error) {
	rows, err := s.queries.ClaimNotification(ctx, id)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// CompleteNotification は通知をsentへ遷移させる。
func (s *Store) CompleteNotification(ctx context.Context, id int64) error {
	rows, err := s.queries.CompleteNotification(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("通知 %d は送信中ではありません", id)
	}
	return nil
}

// ReleaseNotification は送信中の通知を指定の状態へ戻す。
func (s *Store) ReleaseNotification(ctx context.Context, id int64, to dispatch.Status) error {
	if !to.Dispatchable() {
		return fmt.Errorf("通知を %q には戻せません", to)
	}
	rows, err := s.queries.ReleaseNotification(ctx, notificationdb.ReleaseNotificationParams{
		Status: string(to),
		ID:     id,
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("通知 %d は送信中ではありません", id)
	}
	return nil
}

// Record は配信履歴を1行追記する。
func (s *Store) Record(ctx context.Context, e dispatch.HistoryEntry) error {
	_, err := s.queries.CreateHistory(ctx, notificationdb.CreateHistoryParams{
		NotificationID: e.NotificationID,
		DispatchID:     e.DispatchID,
		PushToken:      e.PushToken,
		DeliveryStatus: string(e.Status),
		ErrorMessage:   nullString(e.ErrorMessage),
		TicketID:       nullString(e.TicketID),
	})
	if err != nil {
		return fmt.Errorf("配信履歴の記録に失敗: %w", err)
	}
	return nil
}

// nullString は空文字をNULLに変換する。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
