package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/hitoshi/revculture/internal/middleware"
	"github.com/hitoshi/revculture/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限（64KB）。
const maxJSONBodySize = 64 << 10

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstにデコードする。失敗した場合は400を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("malformed JSON body"))
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		writeAuthError(w, authErr)
		return
	}

	// マネージドバックエンドへの通信失敗は502として扱う
	var netErr net.Error
	if errors.As(err, &netErr) {
		slog.Warn("backend unavailable", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewBackendUnavailableError())
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// authErrorStatus は認証エラーの分類からHTTPステータスコードにマッピングする。
func authErrorStatus(kind model.AuthErrorKind) int {
	switch kind {
	case model.AuthErrInvalidEmail, model.AuthErrWeakPassword:
		return http.StatusBadRequest
	case model.AuthErrInvalidCredentials, model.AuthErrSessionExpired:
		return http.StatusUnauthorized
	case model.AuthErrUserDisabled, model.AuthErrSignupDisabled, model.AuthErrEmailNotConfirmed:
		return http.StatusForbidden
	case model.AuthErrEmailInUse:
		return http.StatusConflict
	case model.AuthErrRateLimited:
		return http.StatusTooManyRequests
	case model.AuthErrSignUpFailed, model.AuthErrSignInFailed, model.AuthErrSignOutFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeAuthError は認証エラーを統一エラーフォーマットで書き込む。
// メッセージは分類ごとの固定文言で、プロバイダーのエラー内容は含めない。
func writeAuthError(w http.ResponseWriter, authErr *model.AuthError) {
	action := "Check your details and try again."
	switch authErr.Kind {
	case model.AuthErrEmailInUse:
		action = "Sign in with this email instead."
	case model.AuthErrRateLimited:
		action = "Wait a moment before trying again."
	case model.AuthErrSessionExpired:
		action = "Sign in again."
	}

	middleware.WriteErrorResponse(w, authErrorStatus(authErr.Kind), &model.APIError{
		Code:     strings.ToUpper(string(authErr.Kind)),
		Message:  authErr.Message,
		Category: "auth",
		Action:   action,
	})
}
