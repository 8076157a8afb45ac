package notification

import (
	"database/sql"
	"errors"
	"net/http"
	"slices"
	"testing"

	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/pkg/event"
	"github.com/nao1215/pushfan/pkg/pushgateway"
)

// TestHandleSend は通知送信ハンドラのテスト。
func TestHandleSend(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンだけに送信し履歴を記録してsentにすること", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{}
		s := setupTestServer(t, gw)
		createUser(t, s, 1)
		createUser(t, s, 42, "ExpoPushToken[aaa]", "not-a-token")
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{
			UserID:          1,
			RecipientType:   "specific",
			RecipientUserID: sql.NullInt64{Int64: 42, Valid: true},
		})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1),
			map[string]any{"notification_id": id})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if gw.callCount() != 1 {
			t.Fatalf("ゲートウェイ呼び出し回数: got %d, want 1", gw.callCount())
		}
		if got := gw.calls[0]; len(got) != 1 || got[0].To != "ExpoPushToken[aaa]" {
			t.Errorf("送信メッセージ = %+v", got)
		}

		rows := historyRows(t, s, id)
		if len(rows) != 1 {
			t.Fatalf("履歴件数: got %d, want 1", len(rows))
		}
		if rows[0].DeliveryStatus != "ok" || rows[0].PushToken != "ExpoPushToken[aaa]" {
			t.Errorf("履歴 = %+v", rows[0])
		}
		if got := notificationStatus(t, s, id); got != "sent" {
			t.Errorf("状態: got %q, want sent", got)
		}

		result := parseJSON(t, w)["result"].(map[string]any)
		if result["sent_count"] != float64(1) {
			t.Errorf("sent_count: got %v, want 1", result["sent_count"])
		}
		if result["dispatch_id"] != rows[0].DispatchID {
			t.Errorf("dispatch_id: got %v, want %s", result["dispatch_id"], rows[0].DispatchID)
		}
	})

	t.Run("ゲートウェイが失敗した場合はerror履歴を残して502を返しdraftに戻すこと", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{respond: func([]pushgateway.Message) ([]pushgateway.Ticket, error) {
			return nil, errors.New("gateway down")
		}}
		s := setupTestServer(t, gw)
		createUser(t, s, 1)
		createUser(t, s, 42, "ExpoPushToken[aaa]", "not-a-token")
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{
			UserID:          1,
			RecipientType:   "specific",
			RecipientUserID: sql.NullInt64{Int64: 42, Valid: true},
		})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1),
			map[string]any{"notification_id": id})

		if w.Code != http.StatusBadGateway {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusBadGateway)
		}
		if _, ok := parseJSON(t, w)["result"]; ok {
			t.Error("失敗時のレスポンスにresultが含まれている")
		}
		rows := historyRows(t, s, id)
		if len(rows) != 1 {
			t.Fatalf("履歴件数: got %d, want 1", len(rows))
		}
		if rows[0].DeliveryStatus != "error" || rows[0].ErrorMessage.String != "gateway down" {
			t.Errorf("履歴 = %+v", rows[0])
		}
		if got := notificationStatus(t, s, id); got != "draft" {
			t.Errorf("状態: got %q, want draft", got)
		}
	})

	t.Run("トークンが無いspecific宛ては送信せずdraftのままにすること", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{}
		s := setupTestServer(t, gw)
		createUser(t, s, 1)
		createUser(t, s, 2)
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{
			UserID:          1,
			RecipientType:   "specific",
			RecipientUserID: sql.NullInt64{Int64: 2, Valid: true},
		})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1),
			map[string]any{"notification_id": id})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)["result"].(map[string]any)
		if result["outcome"] != "no_recipients" {
			t.Errorf("outcome: got %v, want no_recipients", result["outcome"])
		}
		if gw.callCount() != 0 {
			t.Errorf("ゲートウェイ呼び出し回数: got %d, want 0", gw.callCount())
		}
		if rows := historyRows(t, s, id); len(rows) != 0 {
			t.Errorf("履歴件数: got %d, want 0", len(rows))
		}
		if got := notificationStatus(t, s, id); got != "draft" {
			t.Errorf("状態: got %q, want draft", got)
		}
	})

	t.Run("送信済みの通知は409を返しゲートウェイを呼ばないこと", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{}
		s := setupTestServer(t, gw)
		createUser(t, s, 1, "ExpoPushToken[a]")
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1, Status: "sent"})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1),
			map[string]any{"notification_id": id})

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
		if gw.callCount() != 0 {
			t.Errorf("ゲートウェイ呼び出し回数: got %d, want 0", gw.callCount())
		}
		if rows := historyRows(t, s, id); len(rows) != 0 {
			t.Errorf("履歴件数: got %d, want 0", len(rows))
		}
	})

	t.Run("送信中の通知は409を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})
		createUser(t, s, 1, "ExpoPushToken[a]")
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1, Status: "sending"})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1),
			map[string]any{"notification_id": id})
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("group宛ては既定で422を返すこと", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{}
		s := setupTestServer(t, gw)
		createUser(t, s, 1, "ExpoPushToken[a]")
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1, RecipientType: "group"})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1),
			map[string]any{"notification_id": id})
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnprocessableEntity)
		}
		if gw.callCount() != 0 {
			t.Errorf("ゲートウェイ呼び出し回数: got %d, want 0", gw.callCount())
		}
		if got := notificationStatus(t, s, id); got != "draft" {
			t.Errorf("状態: got %q, want draft", got)
		}
	})

	t.Run("group宛てを全ユーザー宛てとして扱う設定では全トークンに送信すること", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{}
		s := setupTestServer(t, gw, func(o *Options) { o.GroupFallbackAll = true })
		createUser(t, s, 1, "ExpoPushToken[a]")
		createUser(t, s, 2, "ExpoPushToken[b]")
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1, RecipientType: "group"})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1),
			map[string]any{"notification_id": id})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if rows := historyRows(t, s, id); len(rows) != 2 {
			t.Errorf("履歴件数: got %d, want 2", len(rows))
		}
	})

	t.Run("存在しない通知は404を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1),
			map[string]any{"notification_id": 999})
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("通知IDが無い場合は400を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", sessionToken(t, 1), map[string]any{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("イベントシンクへ送信完了と失敗のイベントを送ること", func(t *testing.T) {
		t.Parallel()
		sink := &eventSink{}
		sinkURL := sink.start(t)
		fail := false
		gw := &fakeGateway{}
		gw.respond = func(messages []pushgateway.Message) ([]pushgateway.Ticket, error) {
			if fail {
				return nil, errors.New("gateway down")
			}
			return []pushgateway.Ticket{{ID: "t1", Status: pushgateway.TicketOK}}, nil
		}
		s := setupTestServer(t, gw, func(o *Options) {
			o.Events = event.NewPublisher(sinkURL, o.Logger)
		})
		createUser(t, s, 1, "ExpoPushToken[a]")
		first := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1})
		second := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1})
		token := sessionToken(t, 1)

		if w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", token,
			map[string]any{"notification_id": first}); w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		fail = true
		if w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", token,
			map[string]any{"notification_id": second}); w.Code != http.StatusBadGateway {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusBadGateway)
		}

		want := []event.Type{event.TypeNotificationDispatched, event.TypeNotificationDispatchFailed}
		if got := sink.types(); !slices.Equal(got, want) {
			t.Errorf("イベント: got %v, want %v", got, want)
		}
	})
}

// TestHandleStatus は配信状態取得ハンドラのテスト。
func TestHandleStatus(t *testing.T) {
	t.Parallel()

	t.Run("履歴が無い場合は404を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})
		createUser(t, s, 1)
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/status", sessionToken(t, 1),
			map[string]any{"notification_id": id})
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("記録済みの状態と受領確認を返すこと", func(t *testing.T) {
		t.Parallel()
		gw := &receiptGateway{
			fakeGateway: &fakeGateway{},
			receipts: map[string]pushgateway.Receipt{
				"ticket-ExpoPushToken[a]": {Status: pushgateway.TicketOK},
			},
		}
		s := setupTestServer(t, gw)
		createUser(t, s, 1, "ExpoPushToken[a]", "ExpoPushToken[b]")
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1})
		token := sessionToken(t, 1)

		if w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", token,
			map[string]any{"notification_id": id}); w.Code != http.StatusOK {
			t.Fatalf("送信のステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/status", token,
			map[string]any{"notification_id": id})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		if result["total"] != float64(2) {
			t.Errorf("total: got %v, want 2", result["total"])
		}
		withReceipt := 0
		for _, st := range result["statuses"].([]any) {
			m := st.(map[string]any)
			if m["status"] != "ok" {
				t.Errorf("status: got %v, want ok", m["status"])
			}
			if _, ok := m["receipt"]; ok {
				withReceipt++
			}
		}
		if withReceipt != 1 {
			t.Errorf("受領確認の件数: got %d, want 1", withReceipt)
		}
	})
}

// TestHandleTestSend はテスト送信ハンドラのテスト。
func TestHandleTestSend(t *testing.T) {
	t.Parallel()

	t.Run("送信済みのspecific宛て通知と履歴1件を記録すること", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{}
		s := setupTestServer(t, gw)
		createUser(t, s, 1)

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/test", sessionToken(t, 1), map[string]any{
			"push_token": "ExpoPushToken[test]",
			"title":      "テスト",
			"body":       "本文",
			"data":       map[string]any{"k": "v"},
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		id := int64(parseJSON(t, w)["notification_id"].(float64))

		n, err := s.queries.GetNotification(t.Context(), id)
		if err != nil {
			t.Fatalf("通知の取得に失敗: %v", err)
		}
		if n.Status != "sent" || n.RecipientType != "specific" || n.UserID != 1 {
			t.Errorf("通知 = %+v", n)
		}
		rows := historyRows(t, s, id)
		if len(rows) != 1 || rows[0].PushToken != "ExpoPushToken[test]" || rows[0].DeliveryStatus != "ok" {
			t.Errorf("履歴 = %+v", rows)
		}
		if got := gw.calls[0][0].Data["k"]; got != "v" {
			t.Errorf("data: got %v, want v", got)
		}
	})

	t.Run("書式の不正なトークンは400を返しゲートウェイを呼ばないこと", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{}
		s := setupTestServer(t, gw)
		createUser(t, s, 1)

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/test", sessionToken(t, 1), map[string]any{
			"push_token": "not-a-token",
			"title":      "テスト",
			"body":       "本文",
		})

		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
		fields, _ := parseJSON(t, w)["fields"].(map[string]any)
		if _, ok := fields["push_token"]; !ok {
			t.Errorf("fields: got %v, want push_token", fields)
		}
		if gw.callCount() != 0 {
			t.Errorf("ゲートウェイ呼び出し回数: got %d, want 0", gw.callCount())
		}
	})

	t.Run("ゲートウェイが失敗した場合は502を返し何も記録しないこと", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{respond: func([]pushgateway.Message) ([]pushgateway.Ticket, error) {
			return nil, errors.New("gateway down")
		}}
		s := setupTestServer(t, gw)
		createUser(t, s, 1)

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/test", sessionToken(t, 1), map[string]any{
			"push_token": "ExpoPushToken[test]",
			"title":      "テスト",
			"body":       "本文",
		})
		if w.Code != http.StatusBadGateway {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusBadGateway)
		}
		count, err := s.queries.CountNotifications(t.Context(), sql.NullString{})
		if err != nil || count != 0 {
			t.Errorf("通知件数: got %d (%v), want 0", count, err)
		}
	})
}
