package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, profile, upload, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeValidation          = "VALIDATION_FAILED"
	ErrCodeProfileNotFound     = "PROFILE_NOT_FOUND"
	ErrCodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	ErrCodeFileTooLarge        = "FILE_TOO_LARGE"
	ErrCodeEmptyFile           = "EMPTY_FILE"
	ErrCodeInvalidFilter       = "INVALID_FILTER"
	ErrCodeBackendUnavailable  = "BACKEND_UNAVAILABLE"
	ErrCodeCSRFValidation      = "CSRF_VALIDATION_FAILED"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You need to sign in to do that.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewInvalidRequestError はリクエスト形式の不備を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the submitted data and try again.",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s %s", field, reason),
		Category: "validation",
		Action:   "Correct the highlighted field and try again.",
	}
}

// NewProfileNotFoundError はプロフィール未作成エラーを生成する。
func NewProfileNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("Profile not found: %s", id),
		Category: "profile",
		Action:   "Sign out and sign in again to recreate your profile.",
	}
}

// NewUnsupportedFileTypeError は画像以外のファイルがアップロードされた場合のエラーを生成する。
func NewUnsupportedFileTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedFileType,
		Message:  fmt.Sprintf("Unsupported file type: %s", contentType),
		Category: "upload",
		Action:   "Upload a JPEG, PNG, GIF or WebP image.",
	}
}

// NewFileTooLargeError はサイズ上限を超えるファイルがアップロードされた場合のエラーを生成する。
func NewFileTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("File is too large. The maximum size is %d MB.", maxBytes/(1024*1024)),
		Category: "upload",
		Action:   "Choose a smaller image and try again.",
	}
}

// NewEmptyFileError は空ファイルがアップロードされた場合のエラーを生成する。
func NewEmptyFileError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyFile,
		Message:  "The selected file is empty.",
		Category: "upload",
		Action:   "Choose an image file and try again.",
	}
}

// NewInvalidFilterError は無効なフィルタ指定のエラーを生成する。
func NewInvalidFilterError(name, value string, allowed []string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("Invalid %s: %s", name, value),
		Category: "catalog",
		Action:   fmt.Sprintf("Use one of: %v.", allowed),
	}
}

// NewBackendUnavailableError はマネージドバックエンドへの接続失敗エラーを生成する。
func NewBackendUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  "The service is temporarily unavailable.",
		Category: "system",
		Action:   "Try again in a moment.",
	}
}
