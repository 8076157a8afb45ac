package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/pushfan/internal/dispatch"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/internal/store"
	"github.com/nao1215/pushfan/pkg/event"
	"github.com/nao1215/pushfan/pkg/middleware"
	"github.com/nao1215/pushfan/pkg/pushgateway"
	"github.com/rs/zerolog"
)

// testSecret はテスト用のJWT署名鍵。
const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGateway は応答を差し替えられるゲートウェイ。
type fakeGateway struct {
	mu sync.Mutex
	// respond はバッチへの応答を返す。nilの場合は全件okを返す。
	respond func(messages []pushgateway.Message) ([]pushgateway.Ticket, error)
	calls   [][]pushgateway.Message
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) IsValidToken(token string) bool { return pushgateway.IsExpoPushToken(token) }

func (g *fakeGateway) MaxBatchSize() int { return 100 }

func (g *fakeGateway) SubmitBatch(_ context.Context, messages []pushgateway.Message) ([]pushgateway.Ticket, error) {
	g.mu.Lock()
	g.calls = append(g.calls, messages)
	respond := g.respond
	g.mu.Unlock()

	if respond != nil {
		return respond(messages)
	}
	tickets := make([]pushgateway.Ticket, len(messages))
	for i, m := range messages {
		tickets[i] = pushgateway.Ticket{ID: "ticket-" + m.To, Status: pushgateway.TicketOK}
	}
	return tickets, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// receiptGateway は受領確認に対応したゲートウェイ。
type receiptGateway struct {
	*fakeGateway
	receipts map[string]pushgateway.Receipt
}

func (g *receiptGateway) FetchReceipts(_ context.Context, ids []string) (map[string]pushgateway.Receipt, error) {
	out := make(map[string]pushgateway.Receipt)
	for _, id := range ids {
		if r, ok := g.receipts[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// setupTestServer はテスト用のサーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T, gateway pushgateway.Gateway, opts ...func(*Options)) *Server {
	t.Helper()

	sqlDB, err := notificationdb.Open(t.Context(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	o := Options{
		Port:     "0",
		DB:       sqlDB,
		Gateway:  gateway,
		Verifier: middleware.NewJWTVerifier(testSecret),
		Dispatch: dispatch.Config{HistoryConcurrency: 4},
		Logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := NewServer(o)
	if err != nil {
		t.Fatalf("サーバーの生成に失敗: %v", err)
	}
	return s
}

// createUser はテスト用のユーザーをIDを指定してDBに直接挿入するヘルパー関数。
func createUser(t *testing.T, s *Server, id int64, tokens ...string) {
	t.Helper()
	_, err := s.store.DB().ExecContext(t.Context(),
		"INSERT INTO users (id, email, push_tokens) VALUES (?, ?, ?)",
		id, "user"+strconv.FormatInt(id, 10)+"@example.com", store.JoinTokens(tokens))
	if err != nil {
		t.Fatalf("テスト用ユーザーの作成に失敗: %v", err)
	}
}

// createTestNotification はテスト用に通知をDBに直接挿入するヘルパー関数。
func createTestNotification(t *testing.T, s *Server, params notificationdb.CreateNotificationParams) int64 {
	t.Helper()
	if params.Title == "" {
		params.Title = "タイトル"
	}
	if params.Message == "" {
		params.Message = "メッセージ"
	}
	if params.RecipientType == "" {
		params.RecipientType = "all"
	}
	if params.Status == "" {
		params.Status = "draft"
	}
	n, err := s.queries.CreateNotification(t.Context(), params)
	if err != nil {
		t.Fatalf("テスト用通知の作成に失敗: %v", err)
	}
	return n.ID
}

// sessionToken はテスト用のセッショントークンを発行するヘルパー関数。
func sessionToken(t *testing.T, userID int64) string {
	t.Helper()
	token, err := middleware.GenerateJWT(testSecret, userID, "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("トークンの発行に失敗: %v", err)
	}
	return token
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// notificationStatus はDB上の通知の状態を返すヘルパー関数。
func notificationStatus(t *testing.T, s *Server, id int64) string {
	t.Helper()
	n, err := s.queries.GetNotification(t.Context(), id)
	if err != nil {
		t.Fatalf("通知の取得に失敗: %v", err)
	}
	return n.Status
}

// historyRows は通知の配信履歴を返すヘルパー関数。
func historyRows(t *testing.T, s *Server, id int64) []notificationdb.NotificationHistory {
	t.Helper()
	rows, err := s.queries.ListHistoryByNotification(t.Context(), id)
	if err != nil {
		t.Fatalf("配信履歴の取得に失敗: %v", err)
	}
	return rows
}

// eventSink はイベントシンクのモックサーバー。
type eventSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (e *eventSink) start(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev event.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			e.mu.Lock()
			e.events = append(e.events, ev)
			e.mu.Unlock()
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func (e *eventSink) types() []event.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]event.Type, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.EventType
	}
	return out
}

// TestHealthCheck はヘルスチェックエンドポイントの正常動作を検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t, &fakeGateway{})

	w := doRequest(s, http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSON(t, w)
	if result["status"] != "ok" {
		t.Errorf("status: got %v, want ok", result["status"])
	}
	if result["service"] != "pushfan" {
		t.Errorf("service: got %v, want pushfan", result["service"])
	}
}

// TestAuthentication はセッション検証の動作を検証する。
func TestAuthentication(t *testing.T) {
	t.Parallel()

	t.Run("トークンが無い場合は401を返すこと", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})

		w := doRequest(s, http.MethodGet, "/api/v1/notifications", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("不正なトークンの場合は副作用なく401を返すこと", func(t *testing.T) {
		t.Parallel()
		gw := &fakeGateway{}
		s := setupTestServer(t, gw)
		createUser(t, s, 1, "ExpoPushToken[a]")
		id := createTestNotification(t, s, notificationdb.CreateNotificationParams{UserID: 1})

		w := doRequest(s, http.MethodPost, "/api/v1/notifications/send", "invalid-token",
			map[string]any{"notification_id": id})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if gw.callCount() != 0 {
			t.Errorf("ゲートウェイ呼び出し回数: got %d, want 0", gw.callCount())
		}
		if got := notificationStatus(t, s, id); got != "draft" {
			t.Errorf("状態: got %q, want draft", got)
		}
	})

	t.Run("セッションCookieでも認証できること", func(t *testing.T) {
		t.Parallel()
		s := setupTestServer(t, &fakeGateway{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionToken(t, 1)})
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
	})
}

// TestNewServer はサーバー生成時の入力検証を確認する。
func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("ゲートウェイが無い場合はエラーになること", func(t *testing.T) {
		t.Parallel()
		sqlDB, err := notificationdb.Open(t.Context(), ":memory:", zerolog.Nop())
		if err != nil {
			t.Fatalf("インメモリDBの作成に失敗: %v", err)
		}
		t.Cleanup(func() { sqlDB.Close() })

		if _, err := NewServer(Options{DB: sqlDB, Verifier: middleware.NewJWTVerifier(testSecret)}); err == nil {
			t.Error("エラーが返されなかった")
		}
	})

	t.Run("DBが無い場合はエラーになること", func(t *testing.T) {
		t.Parallel()
		if _, err := NewServer(Options{Gateway: &fakeGateway{}, Verifier: middleware.NewJWTVerifier(testSecret)}); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}

// TestRun はサーバーがコンテキストのキャンセルで停止することを検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t, &fakeGateway{})
	s.port = "0"

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("サーバーが停止しなかった")
	}
}
