package db

import (
	"context"
	"database/sql"
)

const notificationColumns = `id, user_id, title, message, image_url, deep_link_type, deep_link_value,
recipient_type, recipient_user_id, status, created_at, updated_at`

// scanNotification は1行をNotificationに読み込む。
func scanNotification(scanner interface{ Scan(dest ...any) error }) (Notification, error) {
	var n Notification
	err := scanner.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.ImageUrl,
		&n.DeepLinkType,
		&n.DeepLinkValue,
		&n.RecipientType,
		&n.RecipientUserID,
		&n.Status,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	return n, err
}

const createNotification = `
INSERT INTO notifications (
    user_id, title, message, image_url, deep_link_type, deep_link_value,
    recipient_type, recipient_user_id, status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// CreateNotificationParams はCreateNotificationの引数。
type CreateNotificationParams struct {
	UserID          int64
	Title           string
	Message         string
	ImageUrl        sql.NullString
	DeepLinkType    sql.NullString
	DeepLinkValue   sql.NullString
	RecipientType   string
	RecipientUserID sql.NullInt64
	Status          string
}

// CreateNotification は通知を作成する。
func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error) {
	res, err := q.db.ExecContext(ctx, createNotification,
		arg.UserID,
		arg.Title,
		arg.Message,
		arg.ImageUrl,
		arg.DeepLinkType,
		arg.DeepLinkValue,
		arg.RecipientType,
		arg.RecipientUserID,
		arg.Status,
	)
	if err != nil {
		return Notification{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Notification{}, err
	}
	return q.GetNotification(ctx, id)
}

const getNotification = `
SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?
`

// GetNotification はIDで通知を取得する。
func (q *Queries) GetNotification(ctx context.Context, id int64) (Notification, error) {
	return scanNotification(q.db.QueryRowContext(ctx, getNotification, id))
}

const listNotifications = `
SELECT ` + notificationColumns + ` FROM notifications
WHERE (?1 IS NULL OR status = ?1)
ORDER BY created_at DESC, id DESC
LIMIT ?2 OFFSET ?3
`

// ListNotificationsParams はListNotificationsの引数。
type ListNotificationsParams struct {
	Status sql.NullString
	Limit  int64
	Offset int64
}

// ListNotifications は通知を新しい順に返す。Statusが有効な場合はその状態に絞り込む。
func (q *Queries) ListNotifications(ctx context.Context, arg ListNotificationsParams) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx, listNotifications, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const countNotifications = `
SELECT COUNT(*) FROM notifications WHERE (?1 IS NULL OR status = ?1)
`

// CountNotifications は通知の件数を返す。
func (q *Queries) CountNotifications(ctx context.Context, status sql.NullString) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countNotifications, status).Scan(&count)
	return count, err
}

const updateNotification = `
UPDATE notifications SET
    title = ?, message = ?, image_url = ?, deep_link_type = ?, deep_link_value = ?,
    recipient_type = ?, recipient_user_id = ?, status = ?, updated_at = datetime('now')
WHERE id = ? AND status = ?
`

// UpdateNotificationParams はUpdateNotificationの引数。
// ExpectedStatus は読み取り時の状態で、一致しない場合は更新しない。
type UpdateNotificationParams struct {
	Title           string
	Message         string
	ImageUrl        sql.NullString
	DeepLinkType    sql.NullString
	DeepLinkValue   sql.NullString
	RecipientType   string
	RecipientUserID sql.NullInt64
	Status          string
	ID              int64
	ExpectedStatus  string
}

// UpdateNotification は通知を更新し、更新行数を返す。
func (q *Queries) UpdateNotification(ctx context.Context, arg UpdateNotificationParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateNotification,
		arg.Title,
		arg.Message,
		arg.ImageUrl,
		arg.DeepLinkType,
		arg.DeepLinkValue,
		arg.RecipientType,
		arg.RecipientUserID,
		arg.Status,
		arg.ID,
		arg.ExpectedStatus,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteNotification = `
DELETE FROM notifications
WHERE id = ?1
  AND status <> 'sending'
  AND NOT EXISTS (SELECT 1 FROM notification_history WHERE notification_id = ?1)
`

// DeleteNotification は送信中でなく配信履歴も無い通知を削除し、削除行数を返す。
func (q *Queries) DeleteNotification(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteNotification, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const claimNotification = `
UPDATE notifications SET status = 'sending', updated_at = datetime('now')
WHERE id = ? AND status IN ('draft', 'scheduled')
`

// ClaimNotification はdraftまたはscheduledの通知をsendingに遷移させ、更新行数を返す。
// 0件の場合は他の送信処理が確保済みか、送信済み。
func (q *Queries) ClaimNotification(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, claimNotification, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const completeNotification = `
UPDATE notifications SET status = 'sent', updated_at = datetime('now')
WHERE id = ? AND status = 'sending'
`

// CompleteNotification はsendingの通知をsentに遷移させ、更新行数を返す。
func (q *Queries) CompleteNotification(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, completeNotification, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const releaseNotification = `
UPDATE notifications SET status = ?, updated_at = datetime('now')
WHERE id = ? AND status = 'sending'
`

// ReleaseNotificationParams はReleaseNotificationの引数。
type ReleaseNotificationParams struct {
	Status string
	ID     int64
}

// ReleaseNotification はsendingの通知を指定の状態に戻し、更新行数を返す。
func (q *Queries) ReleaseNotification(ctx context.Context, arg ReleaseNotificationParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, releaseNotification, arg.Status, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countNotificationsByStatus = `
SELECT
    COALESCE(SUM(CASE WHEN status = 'draft' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'scheduled' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'sending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)
FROM notifications
WHERE user_id = ?1
  AND (?2 IS NULL OR created_at >= ?2)
  AND (?3 IS NULL OR created_at < ?3)
`

// StatsRangeParams は集計クエリの引数。Start/Endは "2006-01-02 15:04:05" 形式のUTC日時。
type StatsRangeParams struct {
	UserID int64
	Start  sql.NullString
	End    sql.NullString
}

// NotificationStatusCounts は状態ごとの通知件数。
type NotificationStatusCounts struct {
	Drafts    int64
	Scheduled int64
	Sending   int64
	Sent      int64
}

// CountNotificationsByStatus はユーザーが作成した通知を状態ごとに数える。
func (q *Queries) CountNotificationsByStatus(ctx context.Context, arg StatsRangeParams) (NotificationStatusCounts, error) {
	var c NotificationStatusCounts
	err := q.db.QueryRowContext(ctx, countNotificationsByStatus, arg.UserID, arg.Start, arg.End).
		Scan(&c.Drafts, &c.Scheduled, &c.Sending, &c.Sent)
	return c, err
}

const listRecentNotifications = `
SELECT ` + notificationColumns + ` FROM notifications
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`

// ListRecentNotificationsParams はListRecentNotificationsの引数。
type ListRecentNotificationsParams struct {
	UserID int64
	Limit  int64
}

// ListRecentNotifications はユーザーが作成した最近の通知を返す。
func (q *Queries) ListRecentNotifications(ctx context.Context, arg ListRecentNotificationsParams) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx, listRecentNotifications, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}
