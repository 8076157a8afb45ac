package notification

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/pushfan/internal/dispatch"
	"github.com/nao1215/pushfan/internal/store"
	"github.com/nao1215/pushfan/pkg/event"
	"github.com/nao1215/pushfan/pkg/middleware"
)

// registerTokenRequest はプッシュトークン登録リクエストのJSON構造。
type registerTokenRequest struct {
	// PushToken は登録するトークン。ゲートウェイの書式に合う必要がある。
	PushToken string `json:"push_token" validate:"required,pushtoken"`
}

// removeTokenRequest はプッシュトークン削除リクエストのJSON構造。
// 書式の崩れたトークンも削除できるよう、書式は検証しない。
type removeTokenRequest struct {
	// PushToken は削除するトークン。
	PushToken string `json:"push_token" validate:"required"`
}

// handleRegisterToken は認証済みユーザーにプッシュトークンを登録するハンドラ。
func (s *Server) handleRegisterToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		var req registerTokenRequest
		if !s.bindJSON(c, &req) {
			return
		}

		count, err := s.store.AddPushToken(c.Request.Context(), userID, req.PushToken)
		if !s.handleTokenError(c, err) {
			return
		}

		s.events.PublishBestEffort(context.WithoutCancel(c.Request.Context()), userID,
			event.AggregateTypeUser, event.TypePushTokenRegistered, event.PushTokenChangedData{TokenCount: count})

		c.JSON(http.StatusOK, gin.H{
			"message":     "プッシュトークンを登録しました",
			"token_count": count,
		})
	}
}

// handleRemoveToken は認証済みユーザーからプッシュトークンを削除するハンドラ。
// 未登録のトークンを指定しても成功として扱う。
func (s *Server) handleRemoveToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		var req removeTokenRequest
		if !s.bindJSON(c, &req) {
			return
		}

		count, err := s.store.RemovePushToken(c.Request.Context(), userID, req.PushToken)
		if !s.handleTokenError(c, err) {
			return
		}

		s.events.PublishBestEffort(context.WithoutCancel(c.Request.Context()), userID,
			event.AggregateTypeUser, event.TypePushTokenRemoved, event.PushTokenChangedData{TokenCount: count})

		c.JSON(http.StatusOK, gin.H{
			"message":     "プッシュトークンを削除しました",
			"token_count": count,
		})
	}
}

// handleTokenError はトークン更新のエラーをレスポンスに変換する。エラーが無い場合はtrue。
func (s *Server) handleTokenError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, dispatch.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
	case errors.Is(err, store.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "プッシュトークンが不正です"})
	default:
		s.log.Error().Err(err).Msg("プッシュトークンの更新に失敗しました")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プッシュトークンの更新に失敗しました"})
	}
	return false
}
