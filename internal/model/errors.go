// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provider, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateEmail         = "DUPLICATE_EMAIL"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeProviderNotLinked      = "PROVIDER_NOT_LINKED"
	ErrCodeProviderExchangeFailed = "PROVIDER_EXCHANGE_FAILED"
	ErrCodeTokenRefreshFailed     = "TOKEN_REFRESH_FAILED"
	ErrCodeProviderCallFailed     = "PROVIDER_CALL_FAILED"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
)

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスで登録するか、ログインしてください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレス不明とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidStateError はOAuthコールバックのstate検証失敗エラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "stateパラメータの検証に失敗しました。",
		Category: "auth",
		Action:   "連携フローを最初からやり直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProviderNotLinkedError はプロバイダー未連携エラーを生成する。
func NewProviderNotLinkedError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderNotLinked,
		Message:  fmt.Sprintf("%s アカウントが連携されていません。", provider),
		Category: "provider",
		Action:   fmt.Sprintf("先に /api/%s/install で連携を完了してください。", provider),
	}
}

// NewProviderExchangeFailedError はトークン交換失敗エラーを生成する。
// プロバイダーが報告したエラー内容をそのままメッセージに含める。
func NewProviderExchangeFailedError(provider, detail string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderExchangeFailed,
		Message:  fmt.Sprintf("%s のトークン交換に失敗しました: %s", provider, detail),
		Category: "provider",
		Action:   "連携フローを最初からやり直してください。",
	}
}

// NewTokenRefreshFailedError はトークンリフレッシュ失敗エラーを生成する。
func NewTokenRefreshFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeTokenRefreshFailed,
		Message:  fmt.Sprintf("アクセストークンの更新に失敗しました: %s", detail),
		Category: "provider",
		Action:   "プロバイダーの連携をやり直してください。",
	}
}

// NewProviderCallFailedError はプロバイダーAPI呼び出し失敗エラーを生成する。
// プロバイダーが報告したエラー内容をそのまま通過させる。
func NewProviderCallFailedError(provider, detail string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderCallFailed,
		Message:  fmt.Sprintf("%s APIの呼び出しに失敗しました: %s", provider, detail),
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト形式不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
