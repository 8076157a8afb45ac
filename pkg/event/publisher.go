package event

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nao1215/pushfan/pkg/httpclient"
	"github.com/rs/zerolog"
)

// eventsPath はイベントシンクの受信パス。
const eventsPath = "/api/v1/events"

// healthPath はイベントシンクの死活確認パス。
const healthPath = "/health"

// Publisher はイベントをイベントシンクへ送信する。
// シンクが設定されていない場合は何もしない。
type Publisher struct {
	// client はイベントシンクへのHTTPクライアント。nilの場合は送信しない。
	client *httpclient.Client
	// log はロガー。
	log zerolog.Logger
}

// NewPublisher は新しいPublisherを生成する。sinkURLが空の場合は送信しないPublisherを返す。
func NewPublisher(sinkURL string, log zerolog.Logger) *Publisher {
	p := &Publisher{log: log.With().Str("comp", "event").Logger()}
	if sinkURL != "" {
		p.client = httpclient.New(sinkURL)
	}
	return p
}

// Enabled はイベントシンクが設定されているかを返す。
func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil
}

// Ping はイベントシンクの死活を確認する。シンク未設定の場合は何もしない。
func (p *Publisher) Ping(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	if err := p.client.GetJSON(ctx, healthPath, nil); err != nil {
		return fmt.Errorf("イベントシンク %s に接続できません: %w", p.client.BaseURL(), err)
	}
	return nil
}

// Publish はイベントを生成してシンクへ送信する。
func (p *Publisher) Publish(ctx context.Context, aggregateID string, aggregateType AggregateType, eventType Type, data any) error {
	if !p.Enabled() {
		return nil
	}
	ev, err := New(aggregateID, aggregateType, eventType, data)
	if err != nil {
		return err
	}
	if err := p.client.PostJSON(ctx, eventsPath, ev, nil); err != nil {
		return fmt.Errorf("イベント %s の送信に失敗: %w", eventType, err)
	}
	return nil
}

// PublishBestEffort はイベントを送信し、失敗してもログに残すだけで処理を続ける。
func (p *Publisher) PublishBestEffort(ctx context.Context, aggregateID int64, aggregateType AggregateType, eventType Type, data any) {
	if !p.Enabled() {
		return
	}
	if err := p.Publish(ctx, strconv.FormatInt(aggregateID, 10), aggregateType, eventType, data); err != nil {
		p.log.Warn().Err(err).Str("event_type", string(eventType)).Msg("イベントの送信に失敗しました")
	}
}
