package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/revculture/internal/middleware"
	"github.com/hitoshi/revculture/internal/model"
)

// multipartOverhead はmultipartの境界やヘッダー分としてファイル上限に上乗せするバイト数。
const multipartOverhead = 64 << 10

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	UpsertProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)
	UploadAvatar(ctx context.Context, id, filename, contentType string, data []byte) (string, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	sessions      SessionProvider
	service       ProfileServiceInterface
	maxAvatarSize int64
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(sessions SessionProvider, service ProfileServiceInterface, maxAvatarSize int64) *ProfileHandler {
	return &ProfileHandler{
		sessions:      sessions,
		service:       service,
		maxAvatarSize: maxAvatarSize,
	}
}

// avatarResponse はアバターアップロードのレスポンス。
type avatarResponse struct {
	AvatarURL string `json:"avatarUrl"`
}

// authorized は認証済みセッションのユーザーIDと、資格情報付きのcontextを返す。
// 未認証の場合は401を書き込んでfalseを返す。
func (h *ProfileHandler) authorized(w http.ResponseWriter, r *http.Request) (string, context.Context, bool) {
	m, ok := resolveSession(w, r, h.sessions)
	if !ok {
		return "", nil, false
	}

	userID := m.UserID()
	if userID == "" {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return "", nil, false
	}
	return userID, m.Authorize(r.Context()), true
}

// GetProfile はサインイン中のユーザーのプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ctx, ok := h.authorized(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProfile(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfile はプロフィールを部分更新する。指定されなかった項目は変更しない。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ctx, ok := h.authorized(w, r)
	if !ok {
		return
	}

	var update model.ProfileUpdate
	if !decodeJSON(w, r, &update) {
		return
	}
	if update.IsEmpty() {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("no fields to update"))
		return
	}

	p, err := h.service.UpsertProfile(ctx, userID, update)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UploadAvatar はmultipartの"file"フィールドで受け取った画像をアバターとして保存する。
// POST /api/profile/avatar
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ctx, ok := h.authorized(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatarSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxAvatarSize + multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteAPIError(w, model.NewFileTooLargeError(h.maxAvatarSize))
			return
		}
		middleware.WriteAPIError(w, model.NewInvalidRequestError("expected multipart/form-data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError(`missing "file" field`))
		return
	}
	defer file.Close()

	// 上限+1バイトまで読み、サイズ判定はサービス層に任せる
	data, err := io.ReadAll(io.LimitReader(file, h.maxAvatarSize+1))
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("failed to read file"))
		return
	}

	url, err := h.service.UploadAvatar(ctx, userID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, avatarResponse{AvatarURL: url})
}
