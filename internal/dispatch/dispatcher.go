package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nao1215/pushfan/pkg/pushgateway"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Outcome は送信処理の結果の種類。
type Outcome string

const (
	// OutcomeSent は全チャンクの送信に成功したことを表す。
	OutcomeSent Outcome = "sent"
	// OutcomeNoRecipients は宛先のトークンが1つも無かったことを表す。
	OutcomeNoRecipients Outcome = "no_recipients"
	// OutcomeNoValidTokens は書式の正しいトークンが1つも無かったことを表す。
	OutcomeNoValidTokens Outcome = "no_valid_tokens"
)

// Delivery はトークン1つ分の送信結果。
type Delivery struct {
	PushToken string                   `json:"push_token"`
	Status    pushgateway.TicketStatus `json:"status"`
	TicketID  string                   `json:"ticket_id,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// Result は送信処理の結果。
type Result struct {
	NotificationID int64      `json:"notification_id"`
	DispatchID     string     `json:"dispatch_id"`
	Outcome        Outcome    `json:"outcome"`
	SentCount      int        `json:"sent_count"`
	ChunkCount     int        `json:"chunk_count"`
	Deliveries     []Delivery `json:"results"`
}

// FailedTickets はゲートウェイがerrorを返したチケット数を返す。
func (r *Result) FailedTickets() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Status == pushgateway.TicketError {
			n++
		}
	}
	return n
}

// Config はDispatcherの設定。
type Config struct {
	// ChunksPerSecond はチャンク送信の毎秒上限。0以下の場合は制限しない。
	ChunksPerSecond int
	// HistoryConcurrency はチャンク内の履歴書き込みの並行数。0以下の場合は1。
	HistoryConcurrency int
}

// Dispatcher は通知をゲートウェイへ送信し、配信履歴と状態を更新する。
type Dispatcher struct {
	notifications      NotificationStore
	resolver           *Resolver
	gateway            pushgateway.Gateway
	history            HistoryRecorder
	limiter            *rate.Limiter
	historyConcurrency int
	newID              func() string
	log                zerolog.Logger
}

// New は新しいDispatcherを生成する。
func New(
	notifications NotificationStore,
	resolver *Resolver,
	gateway pushgateway.Gateway,
	history HistoryRecorder,
	cfg Config,
	log zerolog.Logger,
) *Dispatcher {
	d := &Dispatcher{
		notifications:      notifications,
		resolver:           resolver,
		gateway:            gateway,
		history:            history,
		historyConcurrency: max(cfg.HistoryConcurrency, 1),
		newID:              uuid.NewString,
		log:                log.With().Str("comp", "dispatch").Str("gateway", gateway.Name()).Logger(),
	}
	if cfg.ChunksPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.ChunksPerSecond), cfg.ChunksPerSecond)
	}
	return d
}

// Gateway は送信に使うゲートウェイを返す。
func (d *Dispatcher) Gateway() pushgateway.Gateway {
	return d.gateway
}

// Dispatch は通知を送信する。
//
// 宛先が空、または書式の正しいトークンが無い場合は状態を変えずに成功として返す。
// チャンク送信が失敗した場合は *ChunkError を返し、通知を元の状態へ戻す。
// このとき、それまでの送信結果を含むResultも返す。
func (d *Dispatcher) Dispatch(ctx context.Context, notificationID int64) (*Result, error) {
	n, err := d.notifications.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	switch n.Status {
	case StatusSent:
		return nil, ErrAlreadySent
	case StatusSending:
		return nil, ErrDispatchInProgress
	}

	raw, err := d.resolver.Resolve(ctx, n)
	if err != nil {
		return nil, err
	}

	result := &Result{NotificationID: n.ID, DispatchID: d.newID(), Deliveries: []Delivery{}}
	log := d.log.With().Int64("notification_id", n.ID).Str("dispatch_id", result.DispatchID).Logger()

	if len(raw) == 0 {
		result.Outcome = OutcomeNoRecipients
		log.Info().Msg("宛先が見つからないため送信しません")
		return result, nil
	}
	valid := pushgateway.FilterValid(d.gateway, raw)
	if len(valid) == 0 {
		result.Outcome = OutcomeNoValidTokens
		log.Info().Int("raw_tokens", len(raw)).Msg("有効なトークンが無いため送信しません")
		return result, nil
	}

	claimed, err := d.notifications.ClaimNotification(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("通知の確保に失敗: %w", err)
	}
	if !claimed {
		return nil, d.claimConflict(ctx, n.ID)
	}

	chunks := Chunk(BuildMessages(n, valid), d.gateway.MaxBatchSize())
	result.ChunkCount = len(chunks)
	log.Info().
		Int("raw_tokens", len(raw)).
		Int("valid_tokens", len(valid)).
		Int("chunks", len(chunks)).
		Msg("送信を開始します")

	for i, chunk := range chunks {
		if err := d.sendChunk(ctx, n, result, i, chunk); err != nil {
			d.release(ctx, n, log)
			log.Warn().Err(err).Int("chunk", i).Msg("送信を中断しました")
			return result, err
		}
	}

	if err := d.complete(ctx, n.ID, log); err != nil {
		return result, fmt.Errorf("送信済みへの更新に失敗: %w", err)
	}
	result.Outcome = OutcomeSent
	result.SentCount = len(valid)
	log.Info().Int("sent", result.SentCount).Int("failed_tickets", result.FailedTickets()).Msg("送信が完了しました")
	return result, nil
}

// sendChunk は1チャンクを送信し、メッセージごとの履歴を記録する。
func (d *Dispatcher) sendChunk(ctx context.Context, n *Notification, result *Result, index int, chunk []pushgateway.Message) error {
	tickets, err := d.submit(ctx, chunk)
	if err != nil {
		entries := make([]HistoryEntry, len(chunk))
		for i, m := range chunk {
			entries[i] = HistoryEntry{
				NotificationID: n.ID,
				DispatchID:     result.DispatchID,
				PushToken:      m.To,
				Status:         pushgateway.TicketError,
				ErrorMessage:   err.Error(),
			}
		}
		if recErr := d.recordAll(ctx, entries); recErr != nil {
			d.log.Error().Err(recErr).Int64("notification_id", n.ID).Msg("失敗履歴の記録に失敗しました")
		}
		result.Deliveries = append(result.Deliveries, toDeliveries(entries)...)
		return &ChunkError{Index: index, Size: len(chunk), Err: err}
	}

	entries := make([]HistoryEntry, len(chunk))
	for i, m := range chunk {
		t := tickets[i]
		entries[i] = HistoryEntry{
			NotificationID: n.ID,
			DispatchID:     result.DispatchID,
			PushToken:      m.To,
			Status:         t.DeliveryStatus(),
			ErrorMessage:   t.ErrorDetail(),
			TicketID:       t.ID,
		}
	}
	if err := d.recordAll(ctx, entries); err != nil {
		return fmt.Errorf("チャンク%dの履歴記録に失敗: %w", index, err)
	}
	result.Deliveries = append(result.Deliveries, toDeliveries(entries)...)
	return nil
}

// submit は送信レートを守ってチャンクをゲートウェイへ送る。
// チケット数がメッセージ数と一致しない場合は失敗として扱う。
func (d *Dispatcher) submit(ctx context.Context, chunk []pushgateway.Message) ([]pushgateway.Ticket, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("送信レートの待機中に中断: %w", err)
		}
	}
	tickets, err := d.gateway.SubmitBatch(ctx, chunk)
	if err != nil {
		return nil, err
	}
	if len(tickets) != len(chunk) {
		return nil, fmt.Errorf("%w: 送信%d件、チケット%d件", pushgateway.ErrTicketMismatch, len(chunk), len(tickets))
	}
	return tickets, nil
}

// recordAll はチャンク内の履歴を並行に書き込み、全件の完了を待つ。
// 1件の失敗で他の書き込みは止めない。
func (d *Dispatcher) recordAll(ctx context.Context, entries []HistoryEntry) error {
	ctx = context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(d.historyConcurrency)
	for _, e := range entries {
		g.Go(func() error {
			return d.history.Record(ctx, e)
		})
	}
	return g.Wait()
}

// completeAttempts は送信済みへの更新を試みる回数。
const completeAttempts = 2

// complete は全チャンク送信後の通知をsentへ遷移させる。
// 失敗した場合、通知はsendingのまま残るため運用者が解放できるようにログへ残す。
func (d *Dispatcher) complete(ctx context.Context, id int64, log zerolog.Logger) error {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		if err = d.notifications.CompleteNotification(context.WithoutCancel(ctx), id); err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("送信済みへの更新に失敗しました")
	}
	log.Error().Err(err).
		Str("hint", fmt.Sprintf("配信は完了済み。状態を確認し必要なら pushctl release %d で解放する", id)).
		Msg("通知がsendingのまま残りました")
	return err
}

// release は確保した通知を元の状態へ戻す。
func (d *Dispatcher) release(ctx context.Context, n *Notification, log zerolog.Logger) {
	if err := d.notifications.ReleaseNotification(context.WithoutCancel(ctx), n.ID, n.Status); err != nil {
		log.Error().Err(err).Str("to", string(n.Status)).Msg("通知の状態を戻せませんでした")
	}
}

// claimConflict は確保に失敗した理由を判定する。
func (d *Dispatcher) claimConflict(ctx context.Context, id int64) error {
	n, err := d.notifications.GetNotification(ctx, id)
	if errors.Is(err, ErrNotificationNotFound) {
		return err
	}
	if err == nil && n.Status == StatusSent {
		return ErrAlreadySent
	}
	return ErrDispatchInProgress
}

func toDeliveries(entries []HistoryEntry) []Delivery {
	out := make([]Delivery, len(entries))
	for i, e := range entries {
		out[i] = Delivery{
			PushToken: e.PushToken,
			Status:    e.Status,
			TicketID:  e.TicketID,
			Error:     e.ErrorMessage,
		}
	}
	return out
}
