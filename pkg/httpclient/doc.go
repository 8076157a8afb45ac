// Package httpclient は外部HTTP APIをJSONで呼び出すクライアントを提供する。
//
// プッシュゲートウェイ（Expo Push API）への送信と、配信イベントのイベントシンクへの送信で使用する。
// 2xx以外のレスポンスは *StatusError として返し、呼び出し側がリトライ可否を判断できるようにする。
package httpclient
