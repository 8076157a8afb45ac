package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/pushfan/internal/dispatch"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/pkg/event"
	"github.com/nao1215/pushfan/pkg/middleware"
	"github.com/nao1215/pushfan/pkg/pushgateway"
)

// notificationIDRequest は通知IDだけを受け取るリクエストのJSON構造。
type notificationIDRequest struct {
	NotificationID int64 `json:"notification_id" validate:"required,gt=0"`
}

// handleSend は通知を宛先のトークンへファンアウト送信するハンドラ。
// クライアントが切断しても送信と履歴の記録は最後まで行う。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notificationIDRequest
		if !s.bindJSON(c, &req) {
			return
		}

		ctx := context.WithoutCancel(c.Request.Context())
		result, err := s.dispatcher.Dispatch(ctx, req.NotificationID)
		if err != nil {
			s.writeDispatchError(c, req.NotificationID, result, err)
			return
		}

		switch result.Outcome {
		case dispatch.OutcomeNoRecipients:
			c.JSON(http.StatusOK, gin.H{
				"message": "宛先のプッシュトークンが見つからないため送信しませんでした",
				"result":  result,
			})
			return
		case dispatch.OutcomeNoValidTokens:
			c.JSON(http.StatusOK, gin.H{
				"message": "有効なプッシュトークンが無いため送信しませんでした",
				"result":  result,
			})
			return
		}

		s.events.PublishBestEffort(ctx, result.NotificationID, event.AggregateTypeNotification,
			event.TypeNotificationDispatched, event.NotificationDispatchedData{
				DispatchID:    result.DispatchID,
				SentCount:     result.SentCount,
				ChunkCount:    result.ChunkCount,
				FailedTickets: result.FailedTickets(),
			})

		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("%d件の通知を送信しました", result.SentCount),
			"result":  result,
		})
	}
}

// writeDispatchError は送信処理のエラーをレスポンスに変換する。
func (s *Server) writeDispatchError(c *gin.Context, id int64, result *dispatch.Result, err error) {
	var chunkErr *dispatch.ChunkError
	switch {
	case errors.Is(err, dispatch.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
	case errors.Is(err, dispatch.ErrAlreadySent):
		c.JSON(http.StatusConflict, gin.H{"error": "通知は送信済みです"})
	case errors.Is(err, dispatch.ErrDispatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "通知は送信処理中です"})
	case errors.Is(err, dispatch.ErrUnsupportedRecipient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "対応していない宛先種別です"})
	case errors.As(err, &chunkErr):
		dispatchID := ""
		if result != nil {
			dispatchID = result.DispatchID
		}
		s.events.PublishBestEffort(context.WithoutCancel(c.Request.Context()), id, event.AggregateTypeNotification,
			event.TypeNotificationDispatchFailed, event.NotificationDispatchFailedData{
				DispatchID: dispatchID,
				ChunkIndex: chunkErr.Index,
				ChunkSize:  chunkErr.Size,
				Reason:     chunkErr.Err.Error(),
			})
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       "一部の通知の送信に失敗しました",
			"dispatch_id": dispatchID,
			"chunk_index": chunkErr.Index,
		})
	default:
		s.log.Error().Err(err).Int64("notification_id", id).Msg("通知の送信に失敗しました")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の送信に失敗しました"})
	}
}

// deliveryStatusResponse はトークンごとの配信状態のJSON構造。
type deliveryStatusResponse struct {
	PushToken    string               `json:"push_token"`
	Status       string               `json:"status"`
	ErrorMessage string               `json:"error_message,omitempty"`
	TicketID     string               `json:"ticket_id,omitempty"`
	DispatchID   string               `json:"dispatch_id"`
	SentAt       string               `json:"sent_at"`
	Receipt      *pushgateway.Receipt `json:"receipt,omitempty"`
}

// handleStatus は通知の記録済み配信状態を返すハンドラ。
// ゲートウェイが受領確認に対応している場合は、チケットの受領確認も取得して添える。
func (s *Server) handleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notificationIDRequest
		if !s.bindJSON(c, &req) {
			return
		}

		rows, err := s.queries.ListHistoryByNotification(c.Request.Context(), req.NotificationID)
		if err != nil {
			s.log.Error().Err(err).Int64("notification_id", req.NotificationID).Msg("配信履歴の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配信状態の取得に失敗しました"})
			return
		}
		if len(rows) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "この通知の配信履歴がありません"})
			return
		}

		statuses := make([]deliveryStatusResponse, 0, len(rows))
		var ticketIDs []string
		for _, r := range rows {
			statuses = append(statuses, deliveryStatusResponse{
				PushToken:    r.PushToken,
				Status:       r.DeliveryStatus,
				ErrorMessage: r.ErrorMessage.String,
				TicketID:     r.TicketID.String,
				DispatchID:   r.DispatchID,
				SentAt:       r.SentAt.Format(time.RFC3339),
			})
			if r.TicketID.Valid {
				ticketIDs = append(ticketIDs, r.TicketID.String)
			}
		}

		resp := gin.H{
			"notification_id": req.NotificationID,
			"total":           len(statuses),
		}
		if fetcher, ok := s.gateway.(pushgateway.ReceiptFetcher); ok && len(ticketIDs) > 0 {
			receipts, err := fetcher.FetchReceipts(c.Request.Context(), ticketIDs)
			if err != nil {
				s.log.Warn().Err(err).Int64("notification_id", req.NotificationID).Msg("受領確認の取得に失敗しました")
				resp["receipts_error"] = "受領確認の取得に失敗しました"
			}
			for i := range statuses {
				if r, ok := receipts[statuses[i].TicketID]; ok {
					statuses[i].Receipt = &r
				}
			}
		}
		resp["statuses"] = statuses

		c.JSON(http.StatusOK, resp)
	}
}

// testSendRequest はテスト送信リクエストのJSON構造。
type testSendRequest struct {
	PushToken string         `json:"push_token" validate:"required,pushtoken"`
	Title     string         `json:"title" validate:"required,max=200"`
	Body      string         `json:"body" validate:"required"`
	Data      map[string]any `json:"data"`
}

// handleTestSend は単一のトークンへテスト通知を送信するハンドラ。
// 送信結果は送信済みのspecific宛て通知と1件の配信履歴として記録する。
func (s *Server) handleTestSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		var req testSendRequest
		if !s.bindJSON(c, &req) {
			return
		}
		if req.Data == nil {
			req.Data = map[string]any{}
		}

		ctx := context.WithoutCancel(c.Request.Context())
		tickets, err := s.gateway.SubmitBatch(ctx, []pushgateway.Message{{
			To:    req.PushToken,
			Sound: "default",
			Title: req.Title,
			Body:  req.Body,
			Data:  req.Data,
		}})
		if err == nil && len(tickets) != 1 {
			err = fmt.Errorf("%w: 送信1件、チケット%d件", pushgateway.ErrTicketMismatch, len(tickets))
		}
		if err != nil {
			s.log.Warn().Err(err).Int64("user_id", userID).Msg("テスト通知の送信に失敗しました")
			c.JSON(http.StatusBadGateway, gin.H{"error": "テスト通知の送信に失敗しました"})
			return
		}
		ticket := tickets[0]

		notificationID, err := s.recordTestSend(ctx, userID, req, ticket)
		if err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Msg("テスト通知の記録に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "テスト通知の記録に失敗しました"})
			return
		}

		s.events.PublishBestEffort(ctx, notificationID, event.AggregateTypeNotification,
			event.TypeTestNotificationSent, event.TestNotificationSentData{
				UserID: userID,
				Status: string(ticket.DeliveryStatus()),
			})

		c.JSON(http.StatusOK, gin.H{
			"message":         "テスト通知を送信しました",
			"notification_id": notificationID,
			"ticket":          ticket,
		})
	}
}

// recordTestSend はテスト送信の通知と配信履歴を1つのトランザクションで記録する。
func (s *Server) recordTestSend(ctx context.Context, userID int64, req testSendRequest, ticket pushgateway.Ticket) (int64, error) {
	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	n, err := q.CreateNotification(ctx, notificationdb.CreateNotificationParams{
		UserID:        userID,
		Title:         req.Title,
		Message:       req.Body,
		RecipientType: string(dispatch.RecipientSpecific),
		Status:        string(dispatch.StatusSent),
	})
	if err != nil {
		return 0, fmt.Errorf("通知の作成に失敗: %w", err)
	}
	if _, err := q.CreateHistory(ctx, notificationdb.CreateHistoryParams{
		NotificationID: n.ID,
		DispatchID:     uuid.NewString(),
		PushToken:      req.PushToken,
		DeliveryStatus: string(ticket.DeliveryStatus()),
		ErrorMessage:   nullString(ticket.ErrorDetail()),
		TicketID:       nullString(ticket.ID),
	}); err != nil {
		return 0, fmt.Errorf("配信履歴の記録に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return n.ID, nil
}

// sqlNullInt64 は正の値のみ有効なNullInt64を返す。
func sqlNullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}
