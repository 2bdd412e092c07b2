// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"net/http"
	"strings"

	"github.com/hitoshi/revculture/internal/middleware"
	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/session"
)

// AuthHandler はサインアップ・サインイン・サインアウトのHTTPハンドラー。
type AuthHandler struct {
	sessions SessionProvider
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionProvider) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// signUpRequest はサインアップリクエストのボディ。
type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse は認証操作の結果。
// サインアップでメール確認が必要な場合、identityは返るがstate.userはnullのまま。
type authResponse struct {
	Identity *model.Identity `json:"identity,omitempty"`
	State    session.State   `json:"state"`
}

// SignUp はアカウントを作成する。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Password == "" || req.Username == "" {
		middleware.WriteAPIError(w, model.NewValidationError("email, password and username", "are required"))
		return
	}

	m, ok := resolveSession(w, r, h.sessions)
	if !ok {
		return
	}

	identity, err := m.SignUp(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.SetUserID(r.Context(), identity.ID)
	writeJSON(w, http.StatusCreated, authResponse{Identity: identity, State: m.Snapshot()})
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		middleware.WriteAPIError(w, model.NewValidationError("email and password", "are required"))
		return
	}

	m, ok := resolveSession(w, r, h.sessions)
	if !ok {
		return
	}

	identity, err := m.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.SetUserID(r.Context(), identity.ID)
	writeJSON(w, http.StatusOK, authResponse{Identity: identity, State: m.Snapshot()})
}

// SignOut はサインアウトする。
// POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	m, ok := resolveSession(w, r, h.sessions)
	if !ok {
		return
	}

	if err := m.SignOut(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{State: m.Snapshot()})
}
