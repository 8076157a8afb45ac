// Package dispatch は1件の通知を多数のプッシュトークンへ配信する。
//
// 送信の流れは次の通り。
//
//  1. 宛先指定（all / specific / group）をトークン列に展開する（Resolver）
//  2. ゲートウェイの書式に合うトークンだけを残す
//  3. トークンごとにメッセージを作り、ゲートウェイの上限サイズのチャンクに分ける
//  4. 通知をsendingに確保し、チャンクを1つずつ送信する
//  5. チケットごとに配信履歴を記録し、全チャンク成功後にsentへ遷移させる
//
// チャンク送信が失敗した場合は、そのチャンクの全メッセージをerrorとして記録し、
// 残りのチャンクを送らずに通知を元の状態へ戻す。
package dispatch
