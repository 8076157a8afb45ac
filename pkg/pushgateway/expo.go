package pushgateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/pushfan/pkg/httpclient"
	"github.com/rs/zerolog"
)

const (
	// DefaultExpoBaseURL はExpo Push APIのベースURL。
	DefaultExpoBaseURL = "https://exp.host"
	// ExpoMaxBatchSize はExpo Push APIが1リクエストで受け付ける最大メッセージ数。
	ExpoMaxBatchSize = 100
	// expoMaxReceiptIDs は受領確認取得1リクエストあたりの最大チケットID数。
	expoMaxReceiptIDs = 300

	expoSendPath     = "/--/api/v2/push/send"
	expoReceiptsPath = "/--/api/v2/push/getReceipts"
)

// ExpoConfig はExpoクライアントの設定。
type ExpoConfig struct {
	// BaseURL はExpo Push APIのベースURL。空の場合は DefaultExpoBaseURL。
	BaseURL string
	// AccessToken はプッシュセキュリティ有効時のアクセストークン。
	AccessToken string
	// MaxRetries は429/5xx応答時の最大リトライ回数。
	MaxRetries int
	// RetryBase はリトライ間隔の初期値。
	RetryBase time.Duration
	// RetryMaxDelay はリトライ間隔の上限。
	RetryMaxDelay time.Duration
	// Timeout はリクエストのタイムアウト。
	Timeout time.Duration
}

// Expo はExpo Push APIのクライアント。
type Expo struct {
	// client はExpo Push APIへのHTTPクライアント。
	client *httpclient.Client
	// cfg はクライアントの設定。
	cfg ExpoConfig
	// log はロガー。
	log zerolog.Logger
}

// expoAPIError はリクエスト全体に対するExpoのエラー。
type expoAPIError struct {
	// Code はエラーコード。
	Code string `json:"code"`
	// Message はエラーの説明。
	Message string `json:"message"`
}

// expoSendResponse は送信APIのレスポンス。
type expoSendResponse struct {
	Data   []Ticket       `json:"data"`
	Errors []expoAPIError `json:"errors"`
}

// expoReceiptsResponse は受領確認APIのレスポンス。
type expoReceiptsResponse struct {
	Data   map[string]Receipt `json:"data"`
	Errors []expoAPIError     `json:"errors"`
}

// NewExpo は新しいExpoクライアントを生成する。
func NewExpo(cfg ExpoConfig, log zerolog.Logger) *Expo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultExpoBaseURL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	opts := []httpclient.Option{httpclient.WithBearerToken(cfg.AccessToken)}
	if cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(cfg.Timeout))
	}
	return &Expo{
		client: httpclient.New(cfg.BaseURL, opts...),
		cfg:    cfg,
		log:    log.With().Str("comp", "expo").Logger(),
	}
}

// Name はゲートウェイ名を返す。
func (e *Expo) Name() string { return "expo" }

// IsValidToken はExpoのプッシュトークン書式かを返す。
func (e *Expo) IsValidToken(token string) bool { return IsExpoPushToken(token) }

// MaxBatchSize は1リクエストあたりの最大メッセージ数を返す。
func (e *Expo) MaxBatchSize() int { return ExpoMaxBatchSize }

// SubmitBatch はメッセージを送信し、位置が対応するチケットを返す。
func (e *Expo) SubmitBatch(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > ExpoMaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(messages), ExpoMaxBatchSize)
	}

	var resp expoSendResponse
	if err := e.postWithRetry(ctx, expoSendPath, messages, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("Expo APIがエラーを返しました: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if len(resp.Data) != len(messages) {
		return nil, fmt.Errorf("%w: 送信%d件、チケット%d件", ErrTicketMismatch, len(messages), len(resp.Data))
	}
	return resp.Data, nil
}

// FetchReceipts はチケットIDごとの配信結果を取得する。
func (e *Expo) FetchReceipts(ctx context.Context, ids []string) (map[string]Receipt, error) {
	receipts := make(map[string]Receipt, len(ids))
	for start := 0; start < len(ids); start += expoMaxReceiptIDs {
		end := min(start+expoMaxReceiptIDs, len(ids))

		var resp expoReceiptsResponse
		body := map[string][]string{"ids": ids[start:end]}
		if err := e.postWithRetry(ctx, expoReceiptsPath, body, &resp); err != nil {
			return nil, err
		}
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("Expo APIがエラーを返しました: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
		}
		for id, r := range resp.Data {
			receipts[id] = r
		}
	}
	return receipts, nil
}

// postWithRetry はPOSTを送信し、429/5xxの場合はバックオフして再試行する。
func (e *Expo) postWithRetry(ctx context.Context, path string, body, result any) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
		err := e.client.PostJSON(ctx, path, body, result)
		if err == nil {
			return nil
		}
		lastErr = err

		var se *httpclient.StatusError
		if !errors.As(err, &se) || !se.Retryable() || attempt > e.cfg.MaxRetries {
			break
		}

		delay := retryDelay(e.cfg.RetryBase, e.cfg.RetryMaxDelay, attempt)
		e.log.Warn().
			Int("status", se.StatusCode).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Expo APIが一時的なエラーを返しました。再試行します")
		if err := sleepContext(ctx, delay); err != nil {
			return fmt.Errorf("再試行の待機中に中断: %w", err)
		}
	}
	return fmt.Errorf("Expo APIへの送信に失敗: %w", lastErr)
}
