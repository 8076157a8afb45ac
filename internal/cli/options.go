package cli

import (
	"context"
	"database/sql"
	"fmt"

	notificationdb "github.com/nao1215/pushfan/internal/notification/db"
	"github.com/nao1215/pushfan/pkg/config"
	"github.com/nao1215/pushfan/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// globalOptions は全コマンド共通のフラグ。空のフラグは設定ファイルと環境変数の値を使う。
type globalOptions struct {
	dbPath   string
	gateway  string
	expoURL  string
	logLevel string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.dbPath, "db", "", "SQLiteデータベースのパス（既定: DATABASE_PATH）")
	f.StringVar(&o.gateway, "gateway", "", "プッシュゲートウェイ expo|fcm（既定: PUSH_GATEWAY）")
	f.StringVar(&o.expoURL, "expo-url", "", "Expo Push APIのベースURL（既定: EXPO_BASE_URL）")
	f.StringVar(&o.logLevel, "log-level", "warn", "ログレベル")
}

// config は設定を読み込み、フラグで上書きする。
func (o *globalOptions) config() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}
	if o.gateway != "" {
		cfg.Gateway = o.gateway
	}
	if o.expoURL != "" {
		cfg.ExpoBaseURL = o.expoURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logger はコマンドのエラー出力に書き込むロガーを返す。
func (o *globalOptions) logger(cmd *cobra.Command) zerolog.Logger {
	return logging.New(logging.Config{Level: o.logLevel, NoColor: true}, cmd.ErrOrStderr())
}

// openDB は設定を読み込み、マイグレーション済みのデータベースを開く。
func (o *globalOptions) openDB(ctx context.Context, cmd *cobra.Command) (*sql.DB, *config.Config, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := notificationdb.Open(ctx, cfg.DatabasePath, o.logger(cmd))
	if err != nil {
		return nil, nil, fmt.Errorf("データベース %s を開けません: %w", cfg.DatabasePath, err)
	}
	return sqlDB, cfg, nil
}
