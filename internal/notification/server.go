package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
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

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Options はサーバーの構成要素。
type Options struct {
	// Port はリッスンポート。
	Port string
	// DB はマイグレーション済みのSQLite接続。
	DB *sql.DB
	// Gateway はプッシュ配信ゲートウェイ。
	Gateway pushgateway.Gateway
	// Verifier はセッショントークンの検証器。
	Verifier middleware.SessionVerifier
	// Dispatch は送信処理の設定。
	Dispatch dispatch.Config
	// GroupFallbackAll がtrueの場合、group宛ての通知を全ユーザー宛てとして送信する。
	GroupFallbackAll bool
	// Events は配信イベントの送信先。nilの場合は送信しない。
	Events *event.Publisher
	// Logger はロガー。
	Logger zerolog.Logger
}

// Server はプッシュ通知管理APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はトークン・通知・履歴のストア。
	store *store.Store
	// queries は一覧や集計に使うクエリ実行オブジェクト。
	queries *notificationdb.Queries
	// dispatcher は通知の送信処理。
	dispatcher *dispatch.Dispatcher
	// gateway はテスト送信と受領確認に使うゲートウェイ。
	gateway pushgateway.Gateway
	// validate はリクエストの検証器。
	validate *requestValidator
	// events は配信イベントの送信先。
	events *event.Publisher
	// log はロガー。
	log zerolog.Logger
}

// NewServer は新しいサーバーを生成する。
func NewServer(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, errors.New("データベース接続が指定されていません")
	}
	if opts.Gateway == nil {
		return nil, errors.New("プッシュゲートウェイが指定されていません")
	}
	if opts.Verifier == nil {
		return nil, errors.New("セッション検証器が指定されていません")
	}

	log := opts.Logger.With().Str("comp", "server").Logger()
	st := store.New(opts.DB)

	var resolverOpts []dispatch.ResolverOption
	if opts.GroupFallbackAll {
		resolverOpts = append(resolverOpts, dispatch.WithGroupFallbackAll())
	}
	resolver := dispatch.NewResolver(st, resolverOpts...)

	validate, err := newRequestValidator(opts.Gateway)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestLogger(log))

	s := &Server{
		router:     router,
		port:       opts.Port,
		store:      st,
		queries:    st.Queries(),
		dispatcher: dispatch.New(st, resolver, opts.Gateway, st, opts.Dispatch, opts.Logger),
		gateway:    opts.Gateway,
		validate:   validate,
		events:     opts.Events,
		log:        log,
	}
	s.setupRoutes(middleware.Auth(opts.Verifier))

	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", srv.Addr).Str("gateway", s.gateway.Name()).Msg("サーバーを起動しました")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.log.Info().Msg("サーバーを停止します")
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("サーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(auth gin.HandlerFunc) {
	api := s.router.Group("/api/v1")
	api.Use(auth)
	{
		pushTokens := api.Group("/push-tokens")
		{
			// プッシュトークン登録
			pushTokens.POST("", s.handleRegisterToken())
			// プッシュトークン削除
			pushTokens.DELETE("", s.handleRemoveToken())
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", s.handleList())
			notifications.POST("", s.handleCreate())
			// 配信履歴一覧
			notifications.GET("/history", s.handleHistory())
			// 作成者ごとの集計
			notifications.GET("/stats", s.handleStats())
			// ファンアウト送信
			notifications.POST("/send", s.handleSend())
			// トークンごとの配信状態
			notifications.POST("/status", s.handleStatus())
			// 単一トークンへのテスト送信
			notifications.POST("/test", s.handleTestSend())
			notifications.GET("/:id", s.handleGet())
			notifications.PUT("/:id", s.handleUpdate())
			notifications.DELETE("/:id", s.handleDelete())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "pushfan"})
	})
}
