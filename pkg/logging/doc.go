// Package logging はzerologベースの構造化ロガーを生成する。
//
// コンソール形式（人間向け）とJSON形式（ログ基盤向け）を切り替えられる。
// 各コンポーネントは生成されたロガーから With().Str("comp", ...) で子ロガーを派生させて使う。
package logging
