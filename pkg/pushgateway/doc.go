// Package pushgateway はプッシュ配信ゲートウェイのクライアントを提供する。
//
// ゲートウェイはメッセージのバッチを受け取り、メッセージごとに位置が対応するチケットを返す。
// 実装としてExpo Push APIとFirebase Cloud Messagingを持つ。
// トークンの書式検証もゲートウェイごとの文法に従ってここで行う。
package pushgateway
