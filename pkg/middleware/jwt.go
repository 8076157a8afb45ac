package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer はセッショントークンの発行者。
const tokenIssuer = "pushfan"

// ErrInvalidSession はセッショントークンが無効な場合のエラー。
var ErrInvalidSession = errors.New("セッションが無効です")

// Identity は検証済みセッションが表すユーザー。
type Identity struct {
	// UserID は認証済みユーザーのID。
	UserID int64
	// Email はユーザーのメールアドレス。
	Email string
}

// SessionVerifier は不透明なセッショントークンをユーザーに解決する。
type SessionVerifier interface {
	// Verify はトークンを検証し、対応するユーザーを返す。無効な場合は ErrInvalidSession を返す。
	Verify(ctx context.Context, token string) (*Identity, error)
}

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーのID。
	UserID int64 `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// GenerateJWT はユーザー情報からHS256署名のセッショントークンを生成する。
// ttlが0以下の場合は24時間とする。
func GenerateJWT(secret string, userID int64, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// JWTVerifier はHS256のJWTを検証する SessionVerifier。
type JWTVerifier struct {
	// secret は署名鍵。
	secret []byte
}

// NewJWTVerifier は新しいJWTVerifierを生成する。
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify はトークンの署名、有効期限、発行者を検証する。
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*Identity, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidSession
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
