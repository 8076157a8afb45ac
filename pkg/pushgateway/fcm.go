package pushgateway

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// FCMMaxBatchSize はSendEachが1回で受け付ける最大メッセージ数。
const FCMMaxBatchSize = 500

// fcmSender はFCMへの一括送信を行うクライアント。*messaging.Client が満たす。
type fcmSender interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// FCM はFirebase Cloud Messagingのクライアント。
type FCM struct {
	// sender はFCMへの送信クライアント。
	sender fcmSender
	// log はロガー。
	log zerolog.Logger
}

// NewFCM はサービスアカウントの認証情報からFCMクライアントを生成する。
// credentialsFileが空の場合はアプリケーションデフォルト認証情報を使う。
func NewFCM(ctx context.Context, credentialsFile string, log zerolog.Logger) (*FCM, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("Firebaseアプリの初期化に失敗: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("FCMクライアントの取得に失敗: %w", err)
	}
	return newFCM(client, log), nil
}

// newFCM は送信クライアントを指定してFCMを生成する。
func newFCM(sender fcmSender, log zerolog.Logger) *FCM {
	return &FCM{
		sender: sender,
		log:    log.With().Str("comp", "fcm").Logger(),
	}
}

// Name はゲートウェイ名を返す。
func (f *FCM) Name() string { return "fcm" }

// IsValidToken はFCM登録トークンの書式かを返す。
func (f *FCM) IsValidToken(token string) bool { return IsFCMToken(token) }

// MaxBatchSize は1回の送信あたりの最大メッセージ数を返す。
func (f *FCM) MaxBatchSize() int { return FCMMaxBatchSize }

// SubmitBatch はメッセージをSendEachで送信し、位置が対応するチケットを返す。
func (f *FCM) SubmitBatch(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > FCMMaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(messages), FCMMaxBatchSize)
	}

	fcmMessages := make([]*messaging.Message, len(messages))
	for i, m := range messages {
		fcmMessages[i] = toFCMMessage(m)
	}

	resp, err := f.sender.SendEach(ctx, fcmMessages)
	if err != nil {
		return nil, fmt.Errorf("FCMへの送信に失敗: %w", err)
	}
	if resp == nil || len(resp.Responses) != len(messages) {
		got := 0
		if resp != nil {
			got = len(resp.Responses)
		}
		return nil, fmt.Errorf("%w: 送信%d件、チケット%d件", ErrTicketMismatch, len(messages), got)
	}

	tickets := make([]Ticket, len(resp.Responses))
	for i, r := range resp.Responses {
		if r.Success {
			tickets[i] = Ticket{ID: r.MessageID, Status: TicketOK}
			continue
		}
		msg := "FCMが配信を拒否しました"
		if r.Error != nil {
			msg = r.Error.Error()
		}
		tickets[i] = Ticket{
			Status:  TicketError,
			Message: msg,
			Details: &TicketDetails{Error: fcmErrorCode(r.Error)},
		}
	}
	f.log.Debug().Int("success", resp.SuccessCount).Int("failure", resp.FailureCount).Msg("FCMへ送信しました")
	return tickets, nil
}

// toFCMMessage はメッセージをFCMの形式に変換する。
func toFCMMessage(m Message) *messaging.Message {
	data := make(map[string]string, len(m.Data))
	for k, v := range m.Data {
		if v == nil {
			continue
		}
		data[k] = fmt.Sprint(v)
	}

	msg := &messaging.Message{
		Token: m.To,
		Notification: &messaging.Notification{
			Title:    m.Title,
			Body:     m.Body,
			ImageURL: m.ImageURL,
		},
		Data: data,
	}
	if m.Sound != "" {
		msg.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{Sound: m.Sound},
		}
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: m.Sound}},
		}
	}
	return msg
}

// fcmErrorCode はFCMのエラーを履歴用のエラーコードに変換する。
func fcmErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case messaging.IsUnregistered(err):
		return "DeviceNotRegistered"
	case messaging.IsInvalidArgument(err):
		return "InvalidArgument"
	case messaging.IsQuotaExceeded(err):
		return "MessageRateExceeded"
	default:
		return "Unknown"
	}
}
