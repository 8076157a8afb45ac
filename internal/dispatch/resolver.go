package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// Resolver は宛先指定をプッシュトークン列に展開する。
type Resolver struct {
	tokens           TokenSource
	groupFallbackAll bool
}

// ResolverOption はResolverの設定を変更する関数。
type ResolverOption func(*Resolver)

// WithGroupFallbackAll はgroup宛先を全ユーザー宛てとして扱う。
func WithGroupFallbackAll() ResolverOption {
	return func(r *Resolver) {
		r.groupFallbackAll = true
	}
}

// NewResolver は新しいResolverを生成する。
func NewResolver(tokens TokenSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{tokens: tokens}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve は通知の宛先をトークン列に展開する。
// ユーザーをまたいだ重複トークンはそのまま残す。
func (r *Resolver) Resolve(ctx context.Context, n *Notification) ([]string, error) {
	switch n.RecipientType {
	case RecipientAll:
		return r.all(ctx)
	case RecipientSpecific:
		if n.RecipientUserID <= 0 {
			return nil, nil
		}
		tokens, err := r.tokens.UserTokens(ctx, n.RecipientUserID)
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("宛先ユーザーのトークン取得に失敗: %w", err)
		}
		return tokens, nil
	case RecipientGroup:
		if r.groupFallbackAll {
			return r.all(ctx)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRecipient, n.RecipientType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRecipient, n.RecipientType)
	}
}

func (r *Resolver) all(ctx context.Context) ([]string, error) {
	tokens, err := r.tokens.AllTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("全ユーザーのトークン取得に失敗: %w", err)
	}
	return tokens, nil
}
