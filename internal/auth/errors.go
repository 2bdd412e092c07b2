package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/supabase"
)

// operation はエラー分類のフォールバックを決める操作種別。
type operation string

const (
	opSignUp  operation = "sign_up"
	opSignIn  operation = "sign_in"
	opSignOut operation = "sign_out"
	opSession operation = "session"
)

// codeKinds はGoTrueのerror_codeと分類の対応。
var codeKinds = map[string]model.AuthErrorKind{
	"user_already_exists":        model.AuthErrEmailInUse,
	"email_exists":               model.AuthErrEmailInUse,
	"email_address_invalid":      model.AuthErrInvalidEmail,
	"weak_password":              model.AuthErrWeakPassword,
	"invalid_credentials":        model.AuthErrInvalidCredentials,
	"invalid_grant":              model.AuthErrInvalidCredentials,
	"user_banned":                model.AuthErrUserDisabled,
	"signup_disabled":            model.AuthErrSignupDisabled,
	"email_provider_disabled":    model.AuthErrSignupDisabled,
	"email_not_confirmed":        model.AuthErrEmailNotConfirmed,
	"over_request_rate_limit":    model.AuthErrRateLimited,
	"over_email_send_rate_limit": model.AuthErrRateLimited,
	"refresh_token_not_found":    model.AuthErrSessionExpired,
	"refresh_token_already_used": model.AuthErrSessionExpired,
	"session_not_found":          model.AuthErrSessionExpired,
	"session_expired":            model.AuthErrSessionExpired,
	"bad_jwt":                    model.AuthErrSessionExpired,
}

// messageKinds はerror_codeを返さない旧バージョン向けのメッセージ前方一致の対応。
var messageKinds = []struct {
	prefix string
	kind   model.AuthErrorKind
}{
	{"user already registered", model.AuthErrEmailInUse},
	{"a user with this email address has already been registered", model.AuthErrEmailInUse},
	{"invalid login credentials", model.AuthErrInvalidCredentials},
	{"email not confirmed", model.AuthErrEmailNotConfirmed},
	{"password should be at least", model.AuthErrWeakPassword},
	{"unable to validate email address", model.AuthErrInvalidEmail},
	{"signups not allowed", model.AuthErrSignupDisabled},
	{"user is banned", model.AuthErrUserDisabled},
	{"invalid refresh token", model.AuthErrSessionExpired},
}

// fallbackKind は分類できないエラーに使う操作ごとの既定の分類を返す。
func fallbackKind(op operation) model.AuthErrorKind {
	switch op {
	case opSignUp:
		return model.AuthErrSignUpFailed
	case opSignIn:
		return model.AuthErrSignInFailed
	case opSignOut:
		return model.AuthErrSignOutFailed
	default:
		return model.AuthErrUnknown
	}
}

// mapError はプロバイダーのエラーをmodel.AuthErrorに変換する。
func mapError(op operation, err error) *model.AuthError {
	if err == nil {
		return nil
	}

	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	apiErr, ok := supabase.AsError(err)
	if !ok {
		return model.NewAuthError(fallbackKind(op), err)
	}

	if kind, ok := codeKinds[apiErr.Code]; ok {
		return model.NewAuthError(kind, err)
	}

	msg := strings.ToLower(apiErr.Message)
	for _, mk := range messageKinds {
		if strings.HasPrefix(msg, mk.prefix) {
			return model.NewAuthError(mk.kind, err)
		}
	}

	if apiErr.Status == http.StatusTooManyRequests {
		return model.NewAuthError(model.AuthErrRateLimited, err)
	}

	return model.NewAuthError(fallbackKind(op), err)
}

// isRejected はセッションがバックエンドに拒否された（再試行しても回復しない）かどうかを返す。
func isRejected(err error) bool {
	apiErr, ok := supabase.AsError(err)
	if !ok {
		return false
	}
	switch apiErr.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
