// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizerService はユーザーが入力する自由記述フィールド
// （プロフィールの氏名、表示名）をサニタイズし、
// 保存データへのHTML/スクリプト混入を防ぐ。
// bluemondayのStrictPolicyを使用し、タグは一切通過させない。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService はテキスト入力のサニタイズ機能のインターフェースを定義する。
// プロフィールの作成・更新前に使用される。
type InputSanitizerService interface {
	// SanitizeText は入力からHTMLタグをすべて除去し、前後の空白を取り除いて返す。
	// プレーンテキストはそのまま通過する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(input string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去し、テキストのみを残す。
func NewInputSanitizer() *inputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は入力からHTMLタグをすべて除去し、前後の空白を取り除いて返す。
func (s *inputSanitizer) SanitizeText(input string) string {
	return strings.TrimSpace(s.policy.Sanitize(input))
}
