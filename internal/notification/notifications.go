package notification

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/pushfan/internal/dispatch"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/pkg/middleware"
)

const (
	// defaultPageLimit は一覧の既定の取得件数。
	defaultPageLimit = 10
	// maxPageLimit は一覧の最大取得件数。
	maxPageLimit = 100
)

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id"`
	Title           string `json:"title"`
	Message         string `json:"message"`
	ImageURL        string `json:"image_url,omitempty"`
	DeepLinkType    string `json:"deep_link_type,omitempty"`
	DeepLinkValue   string `json:"deep_link_value,omitempty"`
	RecipientType   string `json:"recipient_type"`
	RecipientUserID *int64 `json:"recipient_user_id,omitempty"`
	Status          string `json:"status"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時（RFC3339形式）。
	UpdatedAt string `json:"updated_at"`
}

// toNotificationResponse はDB行をJSONレスポンスに変換する。
func toNotificationResponse(n notificationdb.Notification) notificationResponse {
	resp := notificationResponse{
		ID:            n.ID,
		UserID:        n.UserID,
		Title:         n.Title,
		Message:       n.Message,
		ImageURL:      n.ImageUrl.String,
		DeepLinkType:  n.DeepLinkType.String,
		DeepLinkValue: n.DeepLinkValue.String,
		RecipientType: n.RecipientType,
		Status:        n.Status,
		CreatedAt:     n.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     n.UpdatedAt.Format(time.RFC3339),
	}
	if n.RecipientUserID.Valid {
		id := n.RecipientUserID.Int64
		resp.RecipientUserID = &id
	}
	return resp
}

// toNotificationResponses はDB行のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []notificationdb.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// pagination は一覧レスポンスのページ情報。
type pagination struct {
	Limit  int64 `json:"limit"`
	Offset int64 `json:"offset"`
	Total  int64 `json:"total"`
}

// parsePage はlimitとoffsetのクエリパラメータを読み取る。不正な場合は400を返してfalseを返す。
func parsePage(c *gin.Context) (limit, offset int64, ok bool) {
	limit, offset = defaultPageLimit, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limitが不正です"})
			return 0, 0, false
		}
		limit = min(n, maxPageLimit)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offsetが不正です"})
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// parseID はパスパラメータの通知IDを読み取る。不正な場合は400を返してfalseを返す。
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "通知IDが不正です"})
		return 0, false
	}
	return id, true
}

// nullString は空文字をNULLに変換する。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// handleList は通知一覧を新しい順に返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := parsePage(c)
		if !ok {
			return
		}
		status := nullString(c.Query("status"))

		notifications, err := s.queries.ListNotifications(c.Request.Context(), notificationdb.ListNotificationsParams{
			Status: status,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("通知一覧の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			return
		}
		total, err := s.queries.CountNotifications(c.Request.Context(), status)
		if err != nil {
			s.log.Error().Err(err).Msg("通知件数の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       toNotificationResponses(notifications),
			"pagination": pagination{Limit: limit, Offset: offset, Total: total},
		})
	}
}

// createNotificationRequest は通知作成リクエストのJSON構造。
type createNotificationRequest struct {
	Title         string `json:"title" validate:"required,max=200"`
	Message       string `json:"message" validate:"required"`
	ImageURL      string `json:"image_url" validate:"omitempty,url"`
	DeepLinkType  string `json:"deep_link_type"`
	DeepLinkValue string `json:"deep_link_value"`
	// RecipientType は宛先の種類。省略時はall。
	RecipientType string `json:"recipient_type" validate:"omitempty,oneof=all specific group"`
	// RecipientUserID はspecific宛ての場合に必須。
	RecipientUserID int64 `json:"recipient_user_id" validate:"required_if=RecipientType specific,gte=0"`
}

// handleCreate は認証済みユーザーを作成者としてdraftの通知を作成するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		var req createNotificationRequest
		if !s.bindJSON(c, &req) {
			return
		}
		recipientType := dispatch.RecipientType(req.RecipientType)
		if recipientType == "" {
			recipientType = dispatch.RecipientAll
		}

		n, err := s.queries.CreateNotification(c.Request.Context(), notificationdb.CreateNotificationParams{
			UserID:          userID,
			Title:           req.Title,
			Message:         req.Message,
			ImageUrl:        nullString(req.ImageURL),
			DeepLinkType:    nullString(req.DeepLinkType),
			DeepLinkValue:   nullString(req.DeepLinkValue),
			RecipientType:   string(recipientType),
			RecipientUserID: sqlNullInt64(req.RecipientUserID),
			Status:          string(dispatch.StatusDraft),
		})
		if err != nil {
			s.log.Error().Err(err).Msg("通知の作成に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			return
		}

		c.JSON(http.StatusCreated, toNotificationResponse(n))
	}
}

// handleGet は指定された通知を返すハンドラ。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		n, ok := s.loadNotification(c, id)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toNotificationResponse(n))
	}
}

// updateNotificationRequest は通知更新リクエストのJSON構造。省略した項目は変更しない。
type updateNotificationRequest struct {
	Title           *string `json:"title" validate:"omitempty,min=1,max=200"`
	Message         *string `json:"message" validate:"omitempty,min=1"`
	ImageURL        *string `json:"image_url" validate:"omitempty,url"`
	DeepLinkType    *string `json:"deep_link_type"`
	DeepLinkValue   *string `json:"deep_link_value"`
	RecipientType   *string `json:"recipient_type" validate:"omitempty,oneof=all specific group"`
	RecipientUserID *int64  `json:"recipient_user_id" validate:"omitempty,gt=0"`
	// Status はdraftとscheduledの間の遷移のみ受け付ける。
	Status *string `json:"status" validate:"omitempty,oneof=draft scheduled"`
}

// handleUpdate は作成者の通知を更新するハンドラ。
// 送信中・送信済みの通知の状態は変更できない。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		var req updateNotificationRequest
		if !s.bindJSON(c, &req) {
			return
		}

		n, ok := s.loadOwnedNotification(c, id)
		if !ok {
			return
		}
		if req.Status != nil && !dispatch.Status(n.Status).Dispatchable() {
			c.JSON(http.StatusConflict, gin.H{"error": "送信中または送信済みの通知の状態は変更できません"})
			return
		}

		params := notificationdb.UpdateNotificationParams{
			Title:           n.Title,
			Message:         n.Message,
			ImageUrl:        n.ImageUrl,
			DeepLinkType:    n.DeepLinkType,
			DeepLinkValue:   n.DeepLinkValue,
			RecipientType:   n.RecipientType,
			RecipientUserID: n.RecipientUserID,
			Status:          n.Status,
			ID:              n.ID,
			ExpectedStatus:  n.Status,
		}
		if req.Title != nil {
			params.Title = *req.Title
		}
		if req.Message != nil {
			params.Message = *req.Message
		}
		if req.ImageURL != nil {
			params.ImageUrl = nullString(*req.ImageURL)
		}
		if req.DeepLinkType != nil {
			params.DeepLinkType = nullString(*req.DeepLinkType)
		}
		if req.DeepLinkValue != nil {
			params.DeepLinkValue = nullString(*req.DeepLinkValue)
		}
		if req.RecipientType != nil {
			params.RecipientType = *req.RecipientType
		}
		if req.RecipientUserID != nil {
			params.RecipientUserID = sql.NullInt64{Int64: *req.RecipientUserID, Valid: true}
		}
		if req.Status != nil {
			params.Status = *req.Status
		}
		if params.RecipientType == string(dispatch.RecipientSpecific) && !params.RecipientUserID.Valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "specific宛てには recipient_user_id が必要です"})
			return
		}

		rows, err := s.queries.UpdateNotification(c.Request.Context(), params)
		if err != nil {
			s.log.Error().Err(err).Int64("notification_id", id).Msg("通知の更新に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の更新に失敗しました"})
			return
		}
		if rows == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "通知の状態が変わったため更新できませんでした"})
			return
		}

		updated, ok := s.loadNotification(c, id)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toNotificationResponse(updated))
	}
}

// handleDelete は作成者の通知を削除するハンドラ。
// 配信履歴がある通知と送信中の通知は削除できない。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		n, ok := s.loadOwnedNotification(c, id)
		if !ok {
			return
		}
		if dispatch.Status(n.Status) == dispatch.StatusSending {
			c.JSON(http.StatusConflict, gin.H{"error": "送信中の通知は削除できません"})
			return
		}

		historyCount, err := s.queries.CountHistory(c.Request.Context(), notificationdb.CountHistoryParams{
			NotificationID: sqlNullInt64(id),
		})
		if err != nil {
			s.log.Error().Err(err).Int64("notification_id", id).Msg("配信履歴件数の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の削除に失敗しました"})
			return
		}
		if historyCount > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "配信履歴がある通知は削除できません"})
			return
		}

		rows, err := s.queries.DeleteNotification(c.Request.Context(), id)
		if err != nil {
			s.log.Error().Err(err).Int64("notification_id", id).Msg("通知の削除に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の削除に失敗しました"})
			return
		}
		if rows == 0 {
			// 確認後に送信が始まったか、削除された
			if _, ok := s.loadNotification(c, id); ok {
				c.JSON(http.StatusConflict, gin.H{"error": "通知の状態が変わったため削除できませんでした"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知を削除しました"})
	}
}

// loadNotification は通知を取得する。存在しない場合は404を返してfalseを返す。
func (s *Server) loadNotification(c *gin.Context, id int64) (notificationdb.Notification, bool) {
	n, err := s.queries.GetNotification(c.Request.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
		return n, false
	}
	if err != nil {
		s.log.Error().Err(err).Int64("notification_id", id).Msg("通知の取得に失敗しました")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
		return n, false
	}
	return n, true
}

// loadOwnedNotification は認証済みユーザーが作成した通知を取得する。
// 他のユーザーの通知の場合は403を返してfalseを返す。
func (s *Server) loadOwnedNotification(c *gin.Context, id int64) (notificationdb.Notification, bool) {
	n, ok := s.loadNotification(c, id)
	if !ok {
		return n, false
	}
	if n.UserID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
		return n, false
	}
	return n, true
}
