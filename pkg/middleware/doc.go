// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// セッショントークンの検証、リクエストログ、パニックリカバリを含む。
// セッションの検証は SessionVerifier インターフェースに委譲し、既定の実装としてHS256のJWTを提供する。
package middleware
