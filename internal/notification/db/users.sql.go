package db

import (
	"context"
	"database/sql"
)

const createUser = `
INSERT INTO users (email) VALUES (?)
`

// CreateUser はユーザーを作成する。
func (q *Queries) CreateUser(ctx context.Context, email string) (User, error) {
	res, err := q.db.ExecContext(ctx, createUser, email)
	if err != nil {
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return q.GetUser(ctx, id)
}

const getUser = `
SELECT id, email, push_tokens, created_at FROM users WHERE id = ?
`

// GetUser はIDでユーザーを取得する。
func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PushTokens, &u.CreatedAt)
	return u, err
}

const getUserPushTokens = `
SELECT push_tokens FROM users WHERE id = ?
`

// GetUserPushTokens はユーザーのプッシュトークン列を取得する。
func (q *Queries) GetUserPushTokens(ctx context.Context, id int64) (sql.NullString, error) {
	row := q.db.QueryRowContext(ctx, getUserPushTokens, id)
	var tokens sql.NullString
	err := row.Scan(&tokens)
	return tokens, err
}

const updateUserPushTokens = `
UPDATE users SET push_tokens = ? WHERE id = ?
`

// UpdateUserPushTokensParams はUpdateUserPushTokensの引数。
type UpdateUserPushTokensParams struct {
	PushTokens sql.NullString
	ID         int64
}

// UpdateUserPushTokens はユーザーのプッシュトークン列を置き換え、更新行数を返す。
func (q *Queries) UpdateUserPushTokens(ctx context.Context, arg UpdateUserPushTokensParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUserPushTokens, arg.PushTokens, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listPushTokenFields = `
SELECT push_tokens FROM users
WHERE push_tokens IS NOT NULL AND push_tokens != ''
ORDER BY id
`

// ListPushTokenFields はトークンを持つ全ユーザーのプッシュトークン列を返す。
func (q *Queries) ListPushTokenFields(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listPushTokenFields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return nil, err
		}
		items = append(items, field)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}
