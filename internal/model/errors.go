package model

import (
	"fmt"
	"strings"
)

// ValidationError は送信前のローカル検証で検出されたエラーを表す。
// バックエンドには一切到達せず、画面側で解決される。
type ValidationError struct {
	Field   string // エラーのあったフィールド名
	Message string // ユーザー向けメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[validation:%s] %s", e.Field, e.Message)
}

// NewRequiredFieldsError は必須フィールド欠落エラーを生成する。
func NewRequiredFieldsError(fields ...string) *ValidationError {
	return &ValidationError{
		Field:   strings.Join(fields, ","),
		Message: "すべての必須項目を入力してください。",
	}
}

// NewInvalidAgeError は年齢の検証エラーを生成する。
func NewInvalidAgeError(input string) *ValidationError {
	return &ValidationError{
		Field:   "age",
		Message: fmt.Sprintf("有効な年齢を入力してください（%d〜%dの整数）: %q", MinAge, MaxAge, input),
	}
}

// NewWeakPasswordValidationError はパスワード長の検証エラーを生成する。
func NewWeakPasswordValidationError() *ValidationError {
	return &ValidationError{
		Field:   "password",
		Message: "パスワードは6文字以上で入力してください。",
	}
}

// NewInvalidSpecialtyError は専攻の検証エラーを生成する。
func NewInvalidSpecialtyError(input string) *ValidationError {
	return &ValidationError{
		Field:   "specialty",
		Message: fmt.Sprintf("専攻は定義済みの選択肢から指定してください: %q", input),
	}
}

// IDサービスのエラー原因コード
const (
	CauseEmailInUse          = "email-in-use"
	CauseInvalidEmail        = "invalid-email"
	CauseWeakPassword        = "weak-password"
	CauseInvalidCredentials  = "invalid-credentials"
	CauseRequiresRecentLogin = "requires-recent-login"
	CauseIdentityInternal    = "internal"
)

// IdentityServiceError はIDサービス由来のエラーを表す。
// バックエンドのエラーコードをCauseとして保持し、ユーザー向けの対処方法を含む。
type IdentityServiceError struct {
	Cause   string // バックエンドのエラー原因コード
	Message string // ユーザー向けメッセージ
	Action  string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *IdentityServiceError) Error() string {
	return fmt.Sprintf("[identity:%s] %s", e.Cause, e.Message)
}

// NewEmailInUseError はメールアドレス重複エラーを生成する。
func NewEmailInUseError(email string) *IdentityServiceError {
	return &IdentityServiceError{
		Cause:   CauseEmailInUse,
		Message: fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Action:  "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInvalidEmailError は不正なメールアドレスのエラーを生成する。
func NewInvalidEmailError(email string) *IdentityServiceError {
	return &IdentityServiceError{
		Cause:   CauseInvalidEmail,
		Message: fmt.Sprintf("メールアドレスの形式が正しくありません: %s", email),
		Action:  "正しい形式のメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError はバックエンドのパスワードポリシー違反エラーを生成する。
func NewWeakPasswordError() *IdentityServiceError {
	return &IdentityServiceError{
		Cause:   CauseWeakPassword,
		Message: "パスワードが脆弱です。",
		Action:  "6文字以上のパスワードを設定してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
func NewInvalidCredentialsError() *IdentityServiceError {
	return &IdentityServiceError{
		Cause:   CauseInvalidCredentials,
		Message: "メールアドレスまたはパスワードが正しくありません。",
		Action:  "入力内容を確認して再度お試しください。",
	}
}

// NewRequiresRecentLoginError は再認証要求エラーを生成する。
// パスワード変更は直近のログインが必要というバックエンドポリシーに対応する。
func NewRequiresRecentLoginError() *IdentityServiceError {
	return &IdentityServiceError{
		Cause:   CauseRequiresRecentLogin,
		Message: "パスワードを変更するには再ログインが必要です。",
		Action:  "一度ログアウトし、ログインし直してから再度お試しください。",
	}
}

// NewIdentityInternalError はIDサービスの内部エラーを生成する。
func NewIdentityInternalError(err error) *IdentityServiceError {
	return &IdentityServiceError{
		Cause:   CauseIdentityInternal,
		Message: fmt.Sprintf("IDサービスでエラーが発生しました: %v", err),
		Action:  "しばらく待ってから再度お試しください。",
	}
}

// DocumentStoreError はドキュメントストアの読み書き失敗を表す。
// ドキュメントが存在しないことはエラーではなく、正常なAbsent結果として扱う。
type DocumentStoreError struct {
	Op         string // "get", "set", "update"
	Collection string
	Key        string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *DocumentStoreError) Error() string {
	return fmt.Sprintf("[docstore:%s] %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
}

// Unwrap はラップされた原因エラーを返す。
func (e *DocumentStoreError) Unwrap() error {
	return e.Err
}

// NewDocumentStoreError はドキュメントストアエラーを生成する。
func NewDocumentStoreError(op, collection, key string, err error) *DocumentStoreError {
	return &DocumentStoreError{Op: op, Collection: collection, Key: key, Err: err}
}

// SubOperation はプロフィール更新を構成する個別操作を表す。
type SubOperation string

// プロフィール更新のサブ操作（実行順: 表示名 → ドキュメント → パスワード）
const (
	SubOpDisplayName    SubOperation = "displayName"
	SubOpDocumentFields SubOperation = "documentFields"
	SubOpPassword       SubOperation = "password"
)

// PartialUpdateFailure はプロフィール更新の一部サブ操作が失敗したことを表す。
// 失敗したサブ操作より前に成功した操作はロールバックされない。
// 画面側は「年齢と専攻は保存されたがパスワード変更は失敗した」のような
// 具体的な報告ができる。
type PartialUpdateFailure struct {
	Succeeded []SubOperation // 失敗前に完了したサブ操作
	Failed    SubOperation   // 失敗したサブ操作
	Err       error          // サブ操作が返したエラー
}

// Error はerrorインターフェースを実装する。
func (e *PartialUpdateFailure) Error() string {
	done := make([]string, len(e.Succeeded))
	for i, op := range e.Succeeded {
		done[i] = string(op)
	}
	return fmt.Sprintf("[partial-update] failed=%s succeeded=[%s]: %v",
		e.Failed, strings.Join(done, ","), e.Err)
}

// Unwrap はラップされた原因エラーを返す。
func (e *PartialUpdateFailure) Unwrap() error {
	return e.Err
}
