package notification

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/nao1215/pushfan/internal/dispatch"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/pkg/pushgateway"
)

// recordHistory はテスト用に配信履歴を直接記録するヘルパー関数。
func recordHistory(t *testing.T, s *Server, notificationID int64, token string, status pushgateway.TicketStatus) {
	t.Helper()
	err := s.store.Record(t.Context(), dispatch.HistoryEntry{
		NotificationID: notificationID,
		DispatchID:     "dispatch-1",
		PushToken:      token,
		Status:         status,
	})
	if err != nil {
		t.Fatalf("配信履歴の記録に失敗: %v", err)
	}
}

// TestHandleHistory は配信履歴一覧ハンドラのテスト。
func TestHandleHistory(t *testing.T) {
	t.Parallel()

	t.Run("状態と通知IDで絞り込めること", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})
		createUser(t, s, 1)
		first := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1, Title: "最初"})
		second := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1, Title: "次"})
		recordHistory(t, s, first, "ExpoPushToken[a]", pushgateway.TicketOK)
		recordHistory(t, s, first, "ExpoPushToken[b]", pushgateway.TicketError)
		recordHistory(t, s, second, "ExpoPushToken[a]", pushgateway.TicketError)

		path := "/api/v1/notifications/history?status=error&notification_id=" + strconv.FormatInt(first, 10)
		w := doRequest(s, http.MethodGet, path, sessionToken(t, 1), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		data := result["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("配列の長さ: got %d, want 1", len(data))
		}
		row := data[0].(map[string]any)
		if row["push_token"] != "ExpoPushToken[b]" || row["notification_title"] != "最初" {
			t.Errorf("履歴 = %v", row)
		}
		if total := result["pagination"].(map[string]any)["total"]; total != float64(1) {
			t.Errorf("total: got %v, want 1", total)
		}
	})

	t.Run("新しい順にページ分割されること", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})
		createUser(t, s, 1)
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1})
		for _, tok := range []string{"ExpoPushToken[a]", "ExpoPushToken[b]", "ExpoPushToken[c]"} {
			recordHistory(t, s, id, tok, pushgateway.TicketOK)
		}

		w := doRequest(s, http.MethodGet, "/api/v1/notifications/history?limit=2&offset=1", sessionToken(t, 1), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		data := result["data"].([]any)
		if len(data) != 2 {
			t.Fatalf("配列の長さ: got %d, want 2", len(data))
		}
		if got := data[0].(map[string]any)["push_token"]; got != "ExpoPushToken[b]" {
			t.Errorf("先頭: got %v, want ExpoPushToken[b]", got)
		}
		if total := result["pagination"].(map[string]any)["total"]; total != float64(3) {
			t.Errorf("total: got %v, want 3", total)
		}
	})

	t.Run("不正な通知IDは400を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})

		w := doRequest(s, http.MethodGet, "/api/v1/notifications/history?notification_id=x", sessionToken(t, 1), nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleStats は集計ハンドラのテスト。
func TestHandleStats(t *testing.T) {
	t.Parallel()

	t.Run("作成者の通知と配信履歴を状態ごとに集計すること", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})
		createUser(t, s, 1)
		createUser(t, s, 2)
		sent := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1, Status: "sent"})
		createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1})
		createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1, Status: "scheduled"})
		other := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 2, Status: "sent"})
		recordHistory(t, s, sent, "ExpoPushToken[a]", pushgateway.TicketOK)
		recordHistory(t, s, sent, "ExpoPushToken[b]", pushgateway.TicketError)
		recordHistory(t, s, sent, "ExpoPushToken[c]", pushgateway.TicketPending)
		recordHistory(t, s, other, "ExpoPushToken[d]", pushgateway.TicketOK)

		w := doRequest(s, http.MethodGet, "/api/v1/notifications/stats", sessionToken(t, 1), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := parseJSON(t, w)
		ns := result["notification_stats"].(map[string]any)
		if ns["total"] != float64(3) || ns["drafts"] != float64(1) || ns["scheduled"] != float64(1) || ns["sent"] != float64(1) {
			t.Errorf("notification_stats = %v", ns)
		}
		ds := result["delivery_stats"].(map[string]any)
		if ds["total"] != float64(3) || ds["delivered"] != float64(1) || ds["failed"] != float64(1) || ds["pending"] != float64(1) {
			t.Errorf("delivery_stats = %v", ds)
		}
		if recent := result["recent_notifications"].([]any); len(recent) != 3 {
			t.Errorf("recent_notifications: got %d, want 3", len(recent))
		}
	})

	t.Run("期間外の通知は集計しないこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})
		createUser(t, s, 1)
		createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1})

		w := doRequest(s, http.MethodGet, "/api/v1/notifications/stats?start_date=2000-01-01&end_date=2000-01-31",
			sessionToken(t, 1), nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		ns := parseJSON(t, w)["notification_stats"].(map[string]any)
		if ns["total"] != float64(0) {
			t.Errorf("total: got %v, want 0", ns["total"])
		}
	})

	tests := []struct {
		name  string
		query string
	}{
		{name: "日付の書式が不正な場合は400を返すこと", query: "?start_date=2024/01/01"},
		{name: "終了日が開始日より前の場合は400を返すこと", query: "?start_date=2024-02-01&end_date=2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := setupTestServer(t, &fakeGateway{})

			w := doRequest(s, http.MethodGet, "/api/v1/notifications/stats"+tt.query, sessionToken(t, 1), nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}
