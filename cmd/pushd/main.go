// プッシュ通知管理APIサーバーのエントリポイント。
// 通知の作成と、登録済みプッシュトークンへのファンアウト送信を提供する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/pushfan/internal/dispatch"
	"github.com/nao1215/pushfan/internal/notification"
	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/pkg/config"
	"github.com/nao1215/pushfan/pkg/event"
	"github.com/nao1215/pushfan/pkg/logging"
	"github.com/nao1215/pushfan/pkg/middleware"
	"github.com/nao1215/pushfan/pkg/pushgateway"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(logging.Config{}, os.Stderr)
		boot.Fatal().Err(err).Msg("設定の読み込みに失敗しました")
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("サーバーの実行に失敗しました")
	}
}

// run はサーバーを組み立て、ctxがキャンセルされるまで実行する。
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.UsesDefaultSecret() {
		log.Warn().Msg("開発用のJWT署名鍵を使用しています。JWT_SECRETを設定してください")
	}

	sqlDB, err := notificationdb.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		return fmt.Errorf("データベース %s の初期化に失敗: %w", cfg.DatabasePath, err)
	}
	defer sqlDB.Close()

	gateway, err := pushgateway.Open(ctx, pushgateway.Options{
		Kind:                cfg.Gateway,
		ExpoBaseURL:         cfg.ExpoBaseURL,
		ExpoAccessToken:     cfg.ExpoAccessToken,
		FirebaseCredentials: cfg.FirebaseCredentials,
	}, log)
	if err != nil {
		return fmt.Errorf("プッシュゲートウェイ %s の初期化に失敗: %w", cfg.Gateway, err)
	}

	events := event.NewPublisher(cfg.EventSinkURL, log)
	if err := events.Ping(ctx); err != nil {
		// イベントは送信できなくても配信は続ける
		log.Warn().Err(err).Msg("イベントシンクの死活確認に失敗しました")
	}

	server, err := notification.NewServer(notification.Options{
		Port:     cfg.Port,
		DB:       sqlDB,
		Gateway:  gateway,
		Verifier: middleware.NewJWTVerifier(cfg.JWTSecret),
		Dispatch: dispatch.Config{
			ChunksPerSecond:    cfg.ChunksPerSecond,
			HistoryConcurrency: cfg.HistoryConcurrency,
		},
		GroupFallbackAll: cfg.GroupFallbackToAll(),
		Events:           events,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	return server.Run(ctx)
}
