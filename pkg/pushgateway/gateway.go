package pushgateway

import (
	"context"
	"errors"
)

// TicketStatus はゲートウェイが返すメッセージ単位の配信状態。
type TicketStatus string

const (
	// TicketOK はゲートウェイがメッセージを受け付けたことを表す。
	TicketOK TicketStatus = "ok"
	// TicketError はゲートウェイがメッセージを拒否したことを表す。
	TicketError TicketStatus = "error"
	// TicketPending は状態が返されなかったことを表す。
	TicketPending TicketStatus = "pending"
)

// ErrTicketMismatch はチケット数が送信メッセージ数と一致しない場合のエラー。
var ErrTicketMismatch = errors.New("チケット数が送信メッセージ数と一致しません")

// ErrBatchTooLarge はバッチがゲートウェイの上限を超えている場合のエラー。
var ErrBatchTooLarge = errors.New("バッチサイズが上限を超えています")

// Message は1つのプッシュトークン宛てのメッセージ。
type Message struct {
	// To は宛先のプッシュトークン。
	To string `json:"to"`
	// Sound は通知音。
	Sound string `json:"sound,omitempty"`
	// Title は通知のタイトル。
	Title string `json:"title,omitempty"`
	// Body は通知の本文。
	Body string `json:"body,omitempty"`
	// Data はアプリに渡す任意のデータ。
	Data map[string]any `json:"data,omitempty"`
	// ImageURL は通知に表示する画像のURL。画像に対応するゲートウェイでのみ使用する。
	ImageURL string `json:"-"`
}

// TicketDetails はエラーチケットの詳細。
type TicketDetails struct {
	// Error はゲートウェイ固有のエラーコード（例: DeviceNotRegistered）。
	Error string `json:"error,omitempty"`
	// ErrorMessage はエラーの説明。
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Ticket は1メッセージに対するゲートウェイの応答。
type Ticket struct {
	// ID はゲートウェイが割り当てたチケットID。受領確認の取得に使う。
	ID string `json:"id,omitempty"`
	// Status は配信状態。
	Status TicketStatus `json:"status"`
	// Message はエラー時の説明。
	Message string `json:"message,omitempty"`
	// Details はエラー時の詳細。
	Details *TicketDetails `json:"details,omitempty"`
}

// DeliveryStatus は履歴に記録する配信状態を返す。状態が空の場合はpending。
func (t Ticket) DeliveryStatus() TicketStatus {
	if t.Status == "" {
		return TicketPending
	}
	return t.Status
}

// ErrorDetail は履歴に記録するエラー内容を返す。詳細の説明を優先し、無ければメッセージを返す。
func (t Ticket) ErrorDetail() string {
	if t.Details != nil && t.Details.ErrorMessage != "" {
		return t.Details.ErrorMessage
	}
	if t.Message != "" {
		return t.Message
	}
	if t.Details != nil {
		return t.Details.Error
	}
	return ""
}

// Gateway はプッシュ配信ゲートウェイ。
type Gateway interface {
	// Name はゲートウェイ名を返す。
	Name() string
	// IsValidToken はトークンがこのゲートウェイの書式に合うかを返す。
	IsValidToken(token string) bool
	// MaxBatchSize は1回のSubmitBatchで送信できる最大メッセージ数を返す。
	MaxBatchSize() int
	// SubmitBatch はメッセージのバッチを送信し、メッセージと同じ順序のチケットを返す。
	SubmitBatch(ctx context.Context, messages []Message) ([]Ticket, error)
}

// Receipt はチケットに対する最終的な配信結果。
type Receipt struct {
	// Status は配信状態。
	Status TicketStatus `json:"status"`
	// Message はエラー時の説明。
	Message string `json:"message,omitempty"`
	// Details はエラー時の詳細。
	Details *TicketDetails `json:"details,omitempty"`
}

// ReceiptFetcher はチケットIDから配信結果を取得できるゲートウェイ。
type ReceiptFetcher interface {
	// FetchReceipts はチケットIDごとの配信結果を返す。結果がまだ無いIDは含まれない。
	FetchReceipts(ctx context.Context, ids []string) (map[string]Receipt, error)
}

// FilterValid はゲートウェイの書式に合うトークンだけを元の順序のまま返す。
func FilterValid(g Gateway, tokens []string) []string {
	valid := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if g.IsValidToken(token) {
			valid = append(valid, token)
		}
	}
	return valid
}
