package db

import (
	"context"
	"database/sql"
	"time"
)

const createHistory = `
INSERT INTO notification_history (
    notification_id, dispatch_id, push_token, delivery_status, error_message, ticket_id
) VALUES (?, ?, ?, ?, ?, ?)
`

// CreateHistoryParams はCreateHistoryの引数。
type CreateHistoryParams struct {
	NotificationID int64
	DispatchID     string
	PushToken      string
	DeliveryStatus string
	ErrorMessage   sql.NullString
	TicketID       sql.NullString
}

// CreateHistory は配信履歴を1行追記し、IDを返す。
func (q *Queries) CreateHistory(ctx context.Context, arg CreateHistoryParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createHistory,
		arg.NotificationID,
		arg.DispatchID,
		arg.PushToken,
		arg.DeliveryStatus,
		arg.ErrorMessage,
		arg.TicketID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listHistory = `
SELECT nh.id, nh.notification_id, nh.dispatch_id, nh.push_token, nh.delivery_status,
       nh.error_message, nh.ticket_id, nh.sent_at, n.title
FROM notification_history nh
LEFT JOIN notifications n ON n.id = nh.notification_id
WHERE (?1 IS NULL OR nh.delivery_status = ?1)
  AND (?2 IS NULL OR nh.notification_id = ?2)
ORDER BY nh.sent_at DESC, nh.id DESC
LIMIT ?3 OFFSET ?4
`

// ListHistoryParams はListHistoryの引数。
type ListHistoryParams struct {
	DeliveryStatus sql.NullString
	NotificationID sql.NullInt64
	Limit          int64
	Offset         int64
}

// ListHistoryRow は通知タイトル付きの配信履歴。
type ListHistoryRow struct {
	ID                int64
	NotificationID    int64
	DispatchID        string
	PushToken         string
	DeliveryStatus    string
	ErrorMessage      sql.NullString
	TicketID          sql.NullString
	SentAt            time.Time
	NotificationTitle sql.NullString
}

// ListHistory は配信履歴を新しい順に返す。
func (q *Queries) ListHistory(ctx context.Context, arg ListHistoryParams) ([]ListHistoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listHistory, arg.DeliveryStatus, arg.NotificationID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ListHistoryRow{}
	for rows.Next() {
		var i ListHistoryRow
		if err := rows.Scan(
			&i.ID,
			&i.NotificationID,
			&i.DispatchID,
			&i.PushToken,
			&i.DeliveryStatus,
			&i.ErrorMessage,
			&i.TicketID,
			&i.SentAt,
			&i.NotificationTitle,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const countHistory = `
SELECT COUNT(*) FROM notification_history
WHERE (?1 IS NULL OR delivery_status = ?1)
  AND (?2 IS NULL OR notification_id = ?2)
`

// CountHistoryParams はCountHistoryの引数。
type CountHistoryParams struct {
	DeliveryStatus sql.NullString
	NotificationID sql.NullInt64
}

// CountHistory は条件に合う配信履歴の件数を返す。
func (q *Queries) CountHistory(ctx context.Context, arg CountHistoryParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countHistory, arg.DeliveryStatus, arg.NotificationID).Scan(&count)
	return count, err
}

const listHistoryByNotification = `
SELECT id, notification_id, dispatch_id, push_token, delivery_status, error_message, ticket_id, sent_at
FROM notification_history
WHERE notification_id = ?
ORDER BY sent_at DESC, id DESC
`

// ListHistoryByNotification は通知の配信履歴を新しい順に返す。
func (q *Queries) ListHistoryByNotification(ctx context.Context, notificationID int64) ([]NotificationHistory, error) {
	rows, err := q.db.QueryContext(ctx, listHistoryByNotification, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []NotificationHistory{}
	for rows.Next() {
		var i NotificationHistory
		if err := rows.Scan(
			&i.ID,
			&i.NotificationID,
			&i.DispatchID,
			&i.PushToken,
			&i.DeliveryStatus,
			&i.ErrorMessage,
			&i.TicketID,
			&i.SentAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const countDeliveriesByStatus = `
SELECT
    COUNT(*),
    COALESCE(SUM(CASE WHEN nh.delivery_status = 'ok' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN nh.delivery_status = 'error' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN nh.delivery_status = 'pending' THEN 1 ELSE 0 END), 0)
FROM notification_history nh
JOIN notifications n ON n.id = nh.notification_id
WHERE n.user_id = ?1
  AND (?2 IS NULL OR nh.sent_at >= ?2)
  AND (?3 IS NULL OR nh.sent_at < ?3)
`

// DeliveryCounts は配信状態ごとの履歴件数。
type DeliveryCounts struct {
	Total     int64
	Delivered int64
	Failed    int64
	Pending   int64
}

// CountDeliveriesByStatus はユーザーが作成した通知の配信履歴を状態ごとに数える。
func (q *Queries) CountDeliveriesByStatus(ctx context.Context, arg StatsRangeParams) (DeliveryCounts, error) {
	var c DeliveryCounts
	err := q.db.QueryRowContext(ctx, countDeliveriesByStatus, arg.UserID, arg.Start, arg.End).
		Scan(&c.Total, &c.Delivered, &c.Failed, &c.Pending)
	return c, err
}
