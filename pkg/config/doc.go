// Package config はpushfanの実行時設定を読み込む。
//
// 読み込み順は「既定値 → YAMLファイル（PUSHFAN_CONFIG） → 環境変数」で、後のものが優先される。
// .envファイルが存在する場合は最初に環境変数へ読み込む。
package config
