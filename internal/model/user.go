// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は認証済みユーザー（マネージドバックエンドのauth.users）を表す。
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`  // サインアップ時のuser_metadata.username
	FullName  string    `json:"fullName,omitempty"`  // user_metadata.full_name
	CreatedAt time.Time `json:"createdAt"`
}

// Session はマネージドバックエンドが発行したログインセッションを表す。
// トークンはサーバー内部でのみ保持し、JSONには出力しない。
type Session struct {
	User         Identity  `json:"user"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// UserID はセッションのユーザーIDを返す。
func (s *Session) UserID() string {
	return s.User.ID
}

// Expired はアクセストークンが期限切れかどうかを返す。
// 時計のずれを考慮し、期限の10秒前から期限切れとみなす。
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt.Add(-10 * time.Second))
}

// AuthEvent は認証状態の変化イベントを表す。
type AuthEvent string

const (
	// AuthEventInitialSession は購読直後に通知される初期セッション。
	AuthEventInitialSession AuthEvent = "INITIAL_SESSION"
	// AuthEventSignedIn はサインイン（サインアップ直後を含む）。
	AuthEventSignedIn AuthEvent = "SIGNED_IN"
	// AuthEventSignedOut はサインアウトまたはセッション失効。
	AuthEventSignedOut AuthEvent = "SIGNED_OUT"
	// AuthEventTokenRefreshed はリフレッシュトークンによるアクセストークン更新。
	AuthEventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	// AuthEventUserUpdated はユーザー情報の更新。
	AuthEventUserUpdated AuthEvent = "USER_UPDATED"
)
