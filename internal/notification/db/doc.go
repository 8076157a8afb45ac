// Package db はプッシュ配信のSQLiteスキーマとクエリを提供する。
//
// Queries はテーブルごとのクエリをメソッドとして持ち、*sql.DB と *sql.Tx のどちらでも実行できる。
// スキーマはmigrationsディレクトリのSQLファイルとしてバイナリに埋め込まれ、Open時に適用される。
package db
