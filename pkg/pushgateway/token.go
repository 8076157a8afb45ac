package pushgateway

import (
	"regexp"
	"strings"
)

// expoUUIDPattern は接頭辞なしのExpoデバイスIDの書式。
var expoUUIDPattern = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)

// fcmTokenPattern はFCM登録トークンに使われる文字種。
var fcmTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_:\-]+$`)

const (
	// fcmTokenMinLen はFCM登録トークンの最小長。
	fcmTokenMinLen = 32
	// fcmTokenMaxLen はFCM登録トークンの最大長。
	fcmTokenMaxLen = 4096
)

// IsExpoPushToken はExpoのプッシュトークン書式かを返す。
// ExponentPushToken[...] / ExpoPushToken[...] 形式と、接頭辞なしのデバイスIDを受け付ける。
func IsExpoPushToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return expoUUIDPattern.MatchString(token)
}

// IsFCMToken はFCM登録トークンの書式かを返す。
func IsFCMToken(token string) bool {
	if len(token) < fcmTokenMinLen || len(token) > fcmTokenMaxLen {
		return false
	}
	return fcmTokenPattern.MatchString(token)
}
