// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, verification, mail, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeAccountNotVerified  = "ACCOUNT_NOT_VERIFIED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeCodeExpired         = "CODE_EXPIRED"
	ErrCodeInvalidCode         = "INVALID_CODE"
	ErrCodeAlreadyVerified     = "ALREADY_VERIFIED"
	ErrCodeEmailDeliveryFailed = "EMAIL_DELIVERY_FAILED"
	ErrCodeTokenDecoding       = "TOKEN_DECODING"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
)

// IsCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewNotFoundError はアカウント未検出エラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Check the email address or register a new account.",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("An account with email %s already exists.", email),
		Category: "auth",
		Action:   "Log in with the existing account or use another email address.",
	}
}

// NewAccountNotVerifiedError は未検証アカウントでのログインエラーを生成する。
func NewAccountNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotVerified,
		Message:  "Please verify your account.",
		Category: "verification",
		Action:   "Enter the verification code sent to your email address.",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email address and password.",
	}
}

// NewCodeExpiredError は検証コード期限切れエラーを生成する。
func NewCodeExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeExpired,
		Message:  "Verification code has expired.",
		Category: "verification",
		Action:   "Request a new verification code.",
	}
}

// NewInvalidCodeError は検証コード不一致エラーを生成する。
func NewInvalidCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCode,
		Message:  "Invalid verification code.",
		Category: "verification",
		Action:   "Check the code in the latest verification email.",
	}
}

// NewAlreadyVerifiedError は検証済みアカウントへの再送エラーを生成する。
func NewAlreadyVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyVerified,
		Message:  "Account is already verified.",
		Category: "verification",
		Action:   "Log in with your email address and password.",
	}
}

// NewEmailDeliveryError はメール送信失敗エラーを生成する。
// causeには送信処理の元エラーを渡す。
func NewEmailDeliveryError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeEmailDeliveryFailed,
		Message:  "Failed to send verification email.",
		Category: "mail",
		Action:   "Please wait and try again later.",
		Err:      cause,
	}
}

// NewTokenDecodingError はトークン解析失敗エラーを生成する。
func NewTokenDecodingError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeTokenDecoding,
		Message:  "Invalid authentication token.",
		Category: "auth",
		Action:   "Log in again to obtain a new token.",
		Err:      cause,
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request body and parameters.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Log in and send the token in the Authorization header.",
	}
}
