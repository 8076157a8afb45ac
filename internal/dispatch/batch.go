package dispatch

import (
	"slices"

	"github.com/nao1215/pushfan/pkg/pushgateway"
)

// defaultSound はメッセージの通知音。
const defaultSound = "default"

// BuildMessages はトークンごとに1つのメッセージを作る。
func BuildMessages(n *Notification, tokens []string) []pushgateway.Message {
	messages := make([]pushgateway.Message, len(tokens))
	for i, token := range tokens {
		messages[i] = pushgateway.Message{
			To:    token,
			Sound: defaultSound,
			Title: n.Title,
			Body:  n.Message,
			Data: map[string]any{
				"deepLinkType":   optional(n.DeepLinkType),
				"deepLinkValue":  optional(n.DeepLinkValue),
				"notificationId": n.ID,
			},
			ImageURL: n.ImageURL,
		}
	}
	return messages
}

// optional は空文字をnilに変換する。
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Chunk は要素を順序を保ったままsize件ずつに分ける。
// sizeが1未満の場合は全要素を1つのチャンクにする。
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = len(items)
	}
	return slices.Collect(slices.Chunk(items, size))
}
