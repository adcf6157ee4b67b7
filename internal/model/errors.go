// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 呼び出し側に提示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provider, system
	Action   string // 呼び出し側向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeProviderNotSupported  = "PROVIDER_NOT_SUPPORTED"
	ErrCodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	ErrCodePullNotSupported      = "PULL_NOT_SUPPORTED"
	ErrCodeUserUnresolved        = "USER_UNRESOLVED"
	ErrCodeConnectionNotFound    = "CONNECTION_NOT_FOUND"
	ErrCodeInvalidBackfillDays   = "INVALID_BACKFILL_DAYS"
	ErrCodeTokenExchangeFailed   = "TOKEN_EXCHANGE_FAILED"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
)

// NewProviderNotSupportedError は未知またはOAuth非対応プロバイダーへの要求エラーを生成する。
func NewProviderNotSupportedError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderNotSupported,
		Message:  fmt.Sprintf("指定されたプロバイダーはサポートされていません: %s", provider),
		Category: "provider",
		Action:   "garmin、oura、whoop、apple のいずれかを指定してください。",
	}
}

// NewProviderNotConfiguredError はOAuthクレデンシャル未設定のプロバイダーへの要求エラーを生成する。
func NewProviderNotConfiguredError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeProviderNotConfigured,
		Message:  fmt.Sprintf("%s のOAuthが設定されていません。", provider),
		Category: "validation",
		Action:   "クライアントID、シークレット、リダイレクトURIの環境変数を設定してください。",
	}
}

// NewPullNotSupportedError はプル同期非対応プロバイダーへの同期要求エラーを生成する。
// GarminとAppleはプッシュ専用のため、同期・バックフィルの対象外となる。
func NewPullNotSupportedError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodePullNotSupported,
		Message:  fmt.Sprintf("%s はプル同期に対応していません。", provider),
		Category: "provider",
		Action:   "プッシュ専用プロバイダーのデータはWebhookまたはingestエンドポイント経由で取り込まれます。",
	}
}

// NewUserUnresolvedError はWebhookのユーザー解決失敗エラーを生成する。
func NewUserUnresolvedError() *APIError {
	return &APIError{
		Code:     ErrCodeUserUnresolved,
		Message:  "ペイロードからユーザーを解決できませんでした。",
		Category: "validation",
		Action:   "user_idクエリパラメータを指定するか、接続のprovider_user_idを確認してください。",
	}
}

// NewConnectionNotFoundError は接続未検出エラーを生成する。
func NewConnectionNotFoundError(userID string, provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeConnectionNotFound,
		Message:  fmt.Sprintf("接続が見つかりません: user=%s provider=%s", userID, provider),
		Category: "provider",
		Action:   "OAuth連携を先に完了してください。",
	}
}

// NewInvalidBackfillDaysError はバックフィル日数が範囲外の場合のエラーを生成する。
func NewInvalidBackfillDaysError(days int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBackfillDays,
		Message:  fmt.Sprintf("無効なバックフィル日数です: %d", days),
		Category: "validation",
		Action:   "日数は1から365の範囲で指定してください。",
	}
}

// NewTokenExchangeFailedError はトークン交換・リフレッシュ失敗エラーを生成する。
// 認可コードは使い捨てのため、本コアでは再試行しない。
func NewTokenExchangeFailedError(provider Provider, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeTokenExchangeFailed,
		Message:  fmt.Sprintf("%s のトークン交換に失敗しました: %s", provider, reason),
		Category: "provider",
		Action:   "OAuthフローを最初からやり直してください。",
	}
}

// NewUnauthorizedError は内部リクエスト認可失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認可に失敗しました。",
		Category: "auth",
		Action:   "有効なAPIキーまたはIDトークンを付与してください。",
	}
}
