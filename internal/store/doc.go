// Package store はSQLite上のプッシュ配信データを扱うリポジトリ。
//
// ユーザーごとのプッシュトークン集合の追加・削除（トークンストア）と、
// 送信処理が使う通知の状態遷移・配信履歴の追記をまとめて提供する。
package store
