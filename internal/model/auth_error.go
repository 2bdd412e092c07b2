package model

import "errors"

// AuthErrorKind は認証エラーの閉じた分類。
// プロバイダー固有のエラーコードはAuth Gatewayの境界でこの分類に変換される。
type AuthErrorKind string

const (
	AuthErrEmailInUse         AuthErrorKind = "email_in_use"
	AuthErrInvalidEmail       AuthErrorKind = "invalid_email"
	AuthErrWeakPassword       AuthErrorKind = "weak_password"
	AuthErrInvalidCredentials AuthErrorKind = "invalid_credentials"
	AuthErrUserDisabled       AuthErrorKind = "user_disabled"
	AuthErrSignupDisabled     AuthErrorKind = "signup_disabled"
	AuthErrEmailNotConfirmed  AuthErrorKind = "email_not_confirmed"
	AuthErrRateLimited        AuthErrorKind = "rate_limited"
	AuthErrSessionExpired     AuthErrorKind = "session_expired"
	AuthErrSignUpFailed       AuthErrorKind = "sign_up_failed"
	AuthErrSignInFailed       AuthErrorKind = "sign_in_failed"
	AuthErrSignOutFailed      AuthErrorKind = "sign_out_failed"
	AuthErrUnknown            AuthErrorKind = "unknown"
)

var authErrorMessages = map[AuthErrorKind]string{
	AuthErrEmailInUse:         "This email is already registered. Please sign in instead.",
	AuthErrInvalidEmail:       "Invalid email address.",
	AuthErrWeakPassword:       "Password should be at least 6 characters.",
	AuthErrInvalidCredentials: "Invalid email or password.",
	AuthErrUserDisabled:       "This account has been disabled.",
	AuthErrSignupDisabled:     "Email/password accounts are not enabled. Please contact support.",
	AuthErrEmailNotConfirmed:  "Please confirm your email address before signing in.",
	AuthErrRateLimited:        "Too many attempts. Please wait a moment and try again.",
	AuthErrSessionExpired:     "Your session has expired. Please sign in again.",
	AuthErrSignUpFailed:       "Failed to create account. Please try again.",
	AuthErrSignInFailed:       "Failed to sign in. Please try again.",
	AuthErrSignOutFailed:      "Failed to sign out. Please try again.",
	AuthErrUnknown:            "Something went wrong. Please try again.",
}

// AuthError はユーザー向けメッセージに変換済みの認証エラー。
// Causeには元のエラーを保持するが、JSONやMessageには含めない。
type AuthError struct {
	Kind    AuthErrorKind `json:"kind"`
	Message string        `json:"message"`
	Cause   error         `json:"-"`
}

// NewAuthError は分類に対応する固定メッセージを持つAuthErrorを生成する。
func NewAuthError(kind AuthErrorKind, cause error) *AuthError {
	msg, ok := authErrorMessages[kind]
	if !ok {
		kind = AuthErrUnknown
		msg = authErrorMessages[AuthErrUnknown]
	}
	return &AuthError{Kind: kind, Message: msg, Cause: cause}
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return e.Message
}

// Unwrap は元のエラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// AsAuthError はerrをAuthErrorとして取り出す。
// AuthErrorでない場合はfallbackの分類で包む。
func AsAuthError(err error, fallback AuthErrorKind) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return NewAuthError(fallback, err)
}
