package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/revculture/internal/model"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// TestWriteAPIError_StatusByCode はアプリケーションのエラーごとにステータスコードが決まることを検証する。
func TestWriteAPIError_StatusByCode(t *testing.T) {
	tests := []struct {
		name       string
		err        *model.APIError
		wantStatus int
	}{
		{"未認証", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"リクエスト不正", model.NewInvalidRequestError("malformed JSON body"), http.StatusBadRequest},
		{"入力検証", model.NewValidationError("username", "is required"), http.StatusBadRequest},
		{"無効なフィルタ", model.NewInvalidFilterError("category", "garage", []string{"trending"}), http.StatusBadRequest},
		{"空ファイル", model.NewEmptyFileError(), http.StatusBadRequest},
		{"CSRF", errCSRF, http.StatusForbidden},
		{"プロフィールなし", model.NewProfileNotFoundError("user-1"), http.StatusNotFound},
		{"サイズ超過", model.NewFileTooLargeError(5 << 20), http.StatusRequestEntityTooLarge},
		{"画像以外", model.NewUnsupportedFileTypeError("application/pdf"), http.StatusUnsupportedMediaType},
		{"レート制限", &model.APIError{Code: model.ErrCodeRateLimited}, http.StatusTooManyRequests},
		{"バックエンド停止", model.NewBackendUnavailableError(), http.StatusBadGateway},
		{"未知のコード", &model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteAPIError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeBody(t, w).Code; got != tt.err.Code {
				t.Errorf("code = %q, want %q", got, tt.err.Code)
			}
		})
	}
}

// TestWriteAPIError_FileTooLargeBody はアップロード上限超過のメッセージに上限値が含まれることを検証する。
func TestWriteAPIError_FileTooLargeBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, model.NewFileTooLargeError(5<<20))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	body := decodeBody(t, w)
	if body.Message != "File is too large. The maximum size is 5 MB." {
		t.Errorf("message = %q", body.Message)
	}
	if body.Category != "upload" || body.Action == "" {
		t.Errorf("body = %+v", body)
	}
}

// TestWriteErrorResponse_ExplicitStatus は呼び出し元が指定したステータスをそのまま使うことを検証する。
// 認証エラーはコードではなく分類からステータスを決めるためこの経路を使う。
func TestWriteErrorResponse_ExplicitStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusConflict, &model.APIError{
		Code:     "EMAIL_IN_USE",
		Message:  "This email is already registered. Please sign in instead.",
		Category: "auth",
		Action:   "Sign in instead.",
	})

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing field: %s", field)
		}
	}
}

// TestWriteInternalServerError_HidesDetails は内部エラーが汎用メッセージで返ることを検証する。
func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	body := decodeBody(t, w)
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
	if body.Message != "Something went wrong on our side." {
		t.Errorf("message = %q", body.Message)
	}
}
