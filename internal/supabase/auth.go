package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/revculture/internal/model"
)

// User はGoTrueのユーザーオブジェクト。
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Identity はドメインモデルのIdentityに変換する。
func (u *User) Identity() model.Identity {
	return model.Identity{
		ID:        u.ID,
		Email:     u.Email,
		Username:  metadataString(u.UserMetadata, "username"),
		FullName:  metadataString(u.UserMetadata, "full_name"),
		CreatedAt: u.CreatedAt,
	}
}

func metadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// AuthSession はGoTrueのトークンレスポンス。
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// ToSession はドメインモデルのSessionに変換する。
// expires_atがない場合はnowとexpires_inから算出する。
func (s *AuthSession) ToSession(now time.Time) *model.Session {
	var expiresAt time.Time
	switch {
	case s.ExpiresAt > 0:
		expiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return &model.Session{
		User:         s.User.Identity(),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// signUpResponse はサインアップのレスポンス。
// メール確認が有効な場合はセッションなしのユーザーオブジェクトのみが返る。
type signUpResponse struct {
	AuthSession
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// SignUp はメールアドレスとパスワードでユーザーを登録する。
// metadataはuser_metadataとして保存される。
// セッションはメール確認が不要な場合のみ返り、それ以外はnil。
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*User, *AuthSession, error) {
	body, err := jsonBody(map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	})
	if err != nil {
		return nil, nil, err
	}

	var resp signUpResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signup", body: body}, &resp); err != nil {
		return nil, nil, err
	}

	if resp.AccessToken != "" {
		s := resp.AuthSession
		return &s.User, &s, nil
	}

	user := &User{
		ID:           resp.ID,
		Email:        resp.Email,
		CreatedAt:    resp.CreatedAt,
		UserMetadata: resp.UserMetadata,
	}
	if user.ID == "" && resp.User.ID != "" {
		user = &resp.User
	}
	return user, nil, nil
}

// SignInWithPassword はメールアドレスとパスワードでセッションを取得する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	var s AuthSession
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   body,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*AuthSession, error) {
	body, err := jsonBody(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	var s AuthSession
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   body,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SignOut はアクセストークンに紐づくセッションを失効させる。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: accessToken,
	}, nil)
}

// GetUser はアクセストークンの持ち主のユーザー情報を取得する。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		bearer: accessToken,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Health は認証サーバーの死活を確認する。
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/health",
	}, nil)
}
