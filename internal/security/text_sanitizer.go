// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はプロバイダーAPIから取得した文字列
// （メールのスニペット・件名、Slackのメッセージ本文等）を
// クライアントへ返す前にサニタイズする。
// 取得元は信頼境界の外にあるため、HTMLタグやスクリプト断片を
// そのままフロントエンドへ中継しない。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は第三者由来テキストのサニタイズ機能の
// インターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、
// スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// プロバイダー由来のテキストは表示用プレーンテキストとしてのみ扱うため、
// 許可リスト方式ではなく全タグ除去のStrictPolicyを使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
// bluemondayはタグ除去後にエンティティをエスケープするため、
// 表示用に一度だけアンエスケープして返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return html.UnescapeString(s.policy.Sanitize(raw))
}
