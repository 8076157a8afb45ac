package pushgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Options はゲートウェイ生成時の設定。
type Options struct {
	// Kind はゲートウェイ種別（expo または fcm）。
	Kind string
	// ExpoBaseURL はExpo Push APIのベースURL。
	ExpoBaseURL string
	// ExpoAccessToken はExpo Push APIのアクセストークン。
	ExpoAccessToken string
	// FirebaseCredentials はFirebaseサービスアカウントの認証情報ファイルのパス。
	FirebaseCredentials string
}

// Open は種別に応じたゲートウェイを生成する。
func Open(ctx context.Context, opts Options, log zerolog.Logger) (Gateway, error) {
	switch opts.Kind {
	case "", "expo":
		return NewExpo(ExpoConfig{
			BaseURL:     opts.ExpoBaseURL,
			AccessToken: opts.ExpoAccessToken,
			MaxRetries:  3,
			Timeout:     30 * time.Second,
		}, log), nil
	case "fcm":
		fcm, err := NewFCM(ctx, opts.FirebaseCredentials, log)
		if err != nil {
			return nil, err
		}
		return fcm, nil
	default:
		return nil, fmt.Errorf("不明なゲートウェイです: %q", opts.Kind)
	}
}
