// Package cli はpushfanの運用コマンド pushctl を提供する。
//
// データベースのマイグレーション、ユーザーとプッシュトークンの管理、
// 開発用セッショントークンの発行、通知の送信と配信履歴の参照、
// 送信中のまま残った通知の解放を行う。
package cli
