package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// GatewayExpo はExpo Push APIを使うゲートウェイ種別。
	GatewayExpo = "expo"
	// GatewayFCM はFirebase Cloud Messagingを使うゲートウェイ種別。
	GatewayFCM = "fcm"

	// GroupFallbackNone はgroup宛先をエラーとして扱う。
	GroupFallbackNone = "none"
	// GroupFallbackAll はgroup宛先を全ユーザー宛てとして扱う。
	GroupFallbackAll = "all"
)

// defaultJWTSecret は開発用のJWT署名鍵。本番では必ず上書きする。
const defaultJWTSecret = "pushfan-dev-secret-change-in-production"

// Config はpushfanの設定値。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `yaml:"port"`
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string `yaml:"database_path"`
	// JWTSecret はセッショントークンの署名鍵。
	JWTSecret string `yaml:"jwt_secret"`
	// TokenTTL はpushctlが発行するセッショントークンの有効期間。
	TokenTTL time.Duration `yaml:"token_ttl"`
	// LogLevel はログレベル。
	LogLevel string `yaml:"log_level"`
	// LogFormat はログの出力形式（console または json）。
	LogFormat string `yaml:"log_format"`
	// Gateway は使用するプッシュゲートウェイ（expo または fcm）。
	Gateway string `yaml:"gateway"`
	// ExpoBaseURL はExpo Push APIのベースURL。
	ExpoBaseURL string `yaml:"expo_base_url"`
	// ExpoAccessToken はExpo Push APIのアクセストークン。空の場合は認証なしで送信する。
	ExpoAccessToken string `yaml:"expo_access_token"`
	// FirebaseCredentials はFirebaseサービスアカウントの認証情報ファイルのパス。
	FirebaseCredentials string `yaml:"firebase_credentials"`
	// ChunksPerSecond はゲートウェイへ送信するチャンク数の毎秒上限。
	ChunksPerSecond int `yaml:"chunks_per_second"`
	// HistoryConcurrency はチャンクごとの配信履歴書き込みの並行数。
	HistoryConcurrency int `yaml:"history_concurrency"`
	// GroupFallback はgroup宛先の扱い（none または all）。
	GroupFallback string `yaml:"group_fallback"`
	// EventSinkURL は配信イベントの送信先ベースURL。空の場合は送信しない。
	EventSinkURL string `yaml:"event_sink_url"`
}

// Default は既定値を設定したConfigを返す。
func Default() *Config {
	return &Config{
		Port:               "8080",
		DatabasePath:       "pushfan.db",
		JWTSecret:          defaultJWTSecret,
		TokenTTL:           24 * time.Hour,
		LogLevel:           "info",
		LogFormat:          "console",
		Gateway:            GatewayExpo,
		ExpoBaseURL:        "https://exp.host",
		ChunksPerSecond:    6,
		HistoryConcurrency: 8,
		GroupFallback:      GroupFallbackNone,
	}
}

// Load は.env、設定ファイル、環境変数から設定を読み込む。
func Load() (*Config, error) {
	// .envファイルは任意なので読み込みエラーは無視する
	_ = godotenv.Load()
	return load(os.Getenv)
}

// load は環境変数の参照関数を受け取って設定を組み立てる。
func load(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := getenv("PUSHFAN_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile はYAML設定ファイルの値で上書きする。ファイルに無いキーは既存の値を保つ。
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルのパースに失敗: %w", err)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする。
func (c *Config) applyEnv(getenv func(string) string) error {
	setString(getenv, "PORT", &c.Port)
	setString(getenv, "DATABASE_PATH", &c.DatabasePath)
	setString(getenv, "JWT_SECRET", &c.JWTSecret)
	setString(getenv, "LOG_LEVEL", &c.LogLevel)
	setString(getenv, "LOG_FORMAT", &c.LogFormat)
	setString(getenv, "PUSH_GATEWAY", &c.Gateway)
	setString(getenv, "EXPO_BASE_URL", &c.ExpoBaseURL)
	setString(getenv, "EXPO_ACCESS_TOKEN", &c.ExpoAccessToken)
	setString(getenv, "FIREBASE_CREDENTIALS", &c.FirebaseCredentials)
	setString(getenv, "GROUP_FALLBACK", &c.GroupFallback)
	setString(getenv, "EVENT_SINK_URL", &c.EventSinkURL)

	if v := getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TOKEN_TTLの値が不正です: %w", err)
		}
		c.TokenTTL = d
	}
	if err := setInt(getenv, "PUSH_CHUNKS_PER_SECOND", &c.ChunksPerSecond); err != nil {
		return err
	}
	if err := setInt(getenv, "HISTORY_WRITE_CONCURRENCY", &c.HistoryConcurrency); err != nil {
		return err
	}
	return nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	c.Gateway = strings.ToLower(strings.TrimSpace(c.Gateway))
	switch c.Gateway {
	case GatewayExpo, GatewayFCM:
	default:
		return fmt.Errorf("不明なゲートウェイです: %q", c.Gateway)
	}

	c.GroupFallback = strings.ToLower(strings.TrimSpace(c.GroupFallback))
	switch c.GroupFallback {
	case "":
		c.GroupFallback = GroupFallbackNone
	case GroupFallbackNone, GroupFallbackAll:
	default:
		return fmt.Errorf("不明なgroup_fallbackです: %q", c.GroupFallback)
	}

	if c.Port == "" {
		return errors.New("ポート番号が指定されていません")
	}
	if c.DatabasePath == "" {
		return errors.New("データベースのパスが指定されていません")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT署名鍵が指定されていません")
	}
	if c.ChunksPerSecond <= 0 {
		c.ChunksPerSecond = Default().ChunksPerSecond
	}
	if c.HistoryConcurrency <= 0 {
		c.HistoryConcurrency = Default().HistoryConcurrency
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = Default().TokenTTL
	}
	return nil
}

// GroupFallbackToAll はgroup宛先を全ユーザー宛てにフォールバックするかを返す。
func (c *Config) GroupFallbackToAll() bool {
	return c.GroupFallback == GroupFallbackAll
}

// UsesDefaultSecret は開発用のJWT署名鍵のままかを返す。
func (c *Config) UsesDefaultSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(getenv func(string) string, key string, dst *int) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%sの値が不正です: %w", key, err)
	}
	*dst = n
	return nil
}
