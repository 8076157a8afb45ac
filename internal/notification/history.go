package notification

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/pkg/middleware"
)

const (
	// statsDateLayout は集計期間の日付書式。
	statsDateLayout = "2006-01-02"
	// sqliteTimeLayout はSQLiteのdatetime()と比較できる日時書式。
	sqliteTimeLayout = "2006-01-02 15:04:05"
	// recentNotificationLimit は集計に含める最近の通知数。
	recentNotificationLimit = 5
)

// historyResponse は配信履歴のJSONレスポンス構造。
type historyResponse struct {
	ID                int64  `json:"id"`
	NotificationID    int64  `json:"notification_id"`
	NotificationTitle string `json:"notification_title,omitempty"`
	DispatchID        string `json:"dispatch_id"`
	PushToken         string `json:"push_token"`
	DeliveryStatus    string `json:"delivery_status"`
	ErrorMessage      string `json:"error_message,omitempty"`
	TicketID          string `json:"ticket_id,omitempty"`
	// SentAt は記録日時（RFC3339形式、ミリ秒精度）。
	SentAt string `json:"sent_at"`
}

// handleHistory は配信履歴を新しい順に返すハンドラ。
func (s *Server) handleHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := parsePage(c)
		if !ok {
			return
		}
		var notificationID int64
		if v := c.Query("notification_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが不正です"})
				return
			}
			notificationID = id
		}
		status := nullString(c.Query("status"))

		rows, err := s.queries.ListHistory(c.Request.Context(), notificationdb.ListHistoryParams{
			DeliveryStatus: status,
			NotificationID: sqlNullInt64(notificationID),
			Limit:          limit,
			Offset:         offset,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("配信履歴の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配信履歴の取得に失敗しました"})
			return
		}
		total, err := s.queries.CountHistory(c.Request.Context(), notificationdb.CountHistoryParams{
			DeliveryStatus: status,
			NotificationID: sqlNullInt64(notificationID),
		})
		if err != nil {
			s.log.Error().Err(err).Msg("配信履歴件数の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "配信履歴の取得に失敗しました"})
			return
		}

		items := make([]historyResponse, 0, len(rows))
		for _, r := range rows {
			items = append(items, historyResponse{
				ID:                r.ID,
				NotificationID:    r.NotificationID,
				NotificationTitle: r.NotificationTitle.String,
				DispatchID:        r.DispatchID,
				PushToken:         r.PushToken,
				DeliveryStatus:    r.DeliveryStatus,
				ErrorMessage:      r.ErrorMessage.String,
				TicketID:          r.TicketID.String,
				SentAt:            r.SentAt.Format(time.RFC3339Nano),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       items,
			"pagination": pagination{Limit: limit, Offset: offset, Total: total},
		})
	}
}

// notificationStats は状態ごとの通知件数のJSON構造。
type notificationStats struct {
	Total     int64 `json:"total"`
	Drafts    int64 `json:"drafts"`
	Scheduled int64 `json:"scheduled"`
	Sending   int64 `json:"sending"`
	Sent      int64 `json:"sent"`
}

// deliveryStats は配信状態ごとの履歴件数のJSON構造。
type deliveryStats struct {
	Total     int64 `json:"total"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

// handleStats は認証済みユーザーが作成した通知の集計を返すハンドラ。
// start_date と end_date（YYYY-MM-DD、UTC）で期間を絞り込める。end_date の日は含む。
func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		params := notificationdb.StatsRangeParams{UserID: userID}
		var start, end time.Time
		if v := c.Query("start_date"); v != "" {
			t, err := time.Parse(statsDateLayout, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "start_dateはYYYY-MM-DD形式で指定してください"})
				return
			}
			start = t
			params.Start = nullString(t.Format(sqliteTimeLayout))
		}
		if v := c.Query("end_date"); v != "" {
			t, err := time.Parse(statsDateLayout, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "end_dateはYYYY-MM-DD形式で指定してください"})
				return
			}
			end = t
			params.End = nullString(t.AddDate(0, 0, 1).Format(sqliteTimeLayout))
		}
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_dateはstart_date以降を指定してください"})
			return
		}

		ctx := c.Request.Context()
		counts, err := s.queries.CountNotificationsByStatus(ctx, params)
		if err != nil {
			s.log.Error().Err(err).Msg("通知の集計に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "集計の取得に失敗しました"})
			return
		}
		deliveries, err := s.queries.CountDeliveriesByStatus(ctx, params)
		if err != nil {
			s.log.Error().Err(err).Msg("配信履歴の集計に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "集計の取得に失敗しました"})
			return
		}
		recent, err := s.queries.ListRecentNotifications(ctx, notificationdb.ListRecentNotificationsParams{
			UserID: userID,
			Limit:  recentNotificationLimit,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("最近の通知の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "集計の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"notification_stats": notificationStats{
				Total:     counts.Drafts + counts.Scheduled + counts.Sending + counts.Sent,
				Drafts:    counts.Drafts,
				Scheduled: counts.Scheduled,
				Sending:   counts.Sending,
				Sent:      counts.Sent,
			},
			"delivery_stats": deliveryStats{
				Total:     deliveries.Total,
				Delivered: deliveries.Delivered,
				Failed:    deliveries.Failed,
				Pending:   deliveries.Pending,
			},
			"recent_notifications": toNotificationResponses(recent),
		})
	}
}
