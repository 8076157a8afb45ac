// Package notification はプッシュ通知管理APIのHTTPサーバーを提供する。
//
// 通知の作成・編集・削除、宛先ユーザーのプッシュトークンの登録、
// 通知のファンアウト送信、配信履歴と集計の参照を行う。
// 送信処理そのものは dispatch パッケージに委譲する。
package notification
