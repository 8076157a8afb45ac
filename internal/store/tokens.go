package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nao1215/pushfan/internal/dispatch"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
)

// tokenSeparator はpush_tokens列のトークン区切り文字。
const tokenSeparator = ","

// ErrInvalidToken は保存できないトークンの場合のエラー。
var ErrInvalidToken = errors.New("プッシュトークンが不正です")

// SplitTokens はpush_tokens列をトークン列に分解する。空の要素は取り除く。
func SplitTokens(field string) []string {
	if field == "" {
		return nil
	}
	parts := strings.Split(field, tokenSeparator)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// JoinTokens はトークン列をpush_tokens列の値にする。空の場合はNULL。
func JoinTokens(tokens []string) sql.NullString {
	if len(tokens) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.Join(tokens, tokenSeparator), Valid: true}
}

// AddPushToken はユーザーにトークンを追加し、変更後のトークン数を返す。登録済みの場合は何もしない。
func (s *Store) AddPushToken(ctx context.Context, userID int64, token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, tokenSeparator) {
		return 0, ErrInvalidToken
	}
	return s.mutateTokens(ctx, userID, func(tokens []string) []string {
		if slices.Contains(tokens, token) {
			return tokens
		}
		return append(tokens, token)
	})
}

// RemovePushToken はユーザーからトークンを取り除き、変更後のトークン数を返す。未登録の場合は何もしない。
func (s *Store) RemovePushToken(ctx context.Context, userID int64, token string) (int, error) {
	token = strings.TrimSpace(token)
	return s.mutateTokens(ctx, userID, func(tokens []string) []string {
		return slices.DeleteFunc(tokens, func(t string) bool { return t == token })
	})
}

// mutateTokens はトランザクション内でトークン集合を読み取り、変更があれば書き戻す。
func (s *Store) mutateTokens(ctx context.Context, userID int64, mutate func([]string) []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	field, err := q.GetUserPushTokens(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, dispatch.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("プッシュトークンの取得に失敗: %w", err)
	}

	current := dedupe(SplitTokens(field.String))
	next := mutate(slices.Clone(current))
	stored := JoinTokens(next)
	if stored == field {
		return len(next), nil
	}

	if _, err := q.UpdateUserPushTokens(ctx, notificationdb.UpdateUserPushTokensParams{
		PushTokens: stored,
		ID:         userID,
	}); err != nil {
		return 0, fmt.Errorf("プッシュトークンの更新に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return len(next), nil
}

// UserTokens は指定ユーザーのトークンを返す。
func (s *Store) UserTokens(ctx context.Context, userID int64) ([]string, error) {
	field, err := s.queries.GetUserPushTokens(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dispatch.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プッシュトークンの取得に失敗: %w", err)
	}
	return SplitTokens(field.String), nil
}

// AllTokens はトークンを持つ全ユーザーのトークンをユーザーID順に平坦化して返す。
func (s *Store) AllTokens(ctx context.Context) ([]string, error) {
	fields, err := s.queries.ListPushTokenFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("プッシュトークン一覧の取得に失敗: %w", err)
	}
	var tokens []string
	for _, f := range fields {
		tokens = append(tokens, SplitTokens(f)...)
	}
	return tokens, nil
}

// dedupe は最初の出現順を保って重複を取り除く。
func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
