// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/revculture/internal/model"
)

var (
	// ErrProfileExists は同一IDのプロフィールが既に存在する場合に返される。
	ErrProfileExists = errors.New("profile already exists")
	// ErrProfileNotFound は更新対象のプロフィールが存在しない場合に返される。
	ErrProfileNotFound = errors.New("profile not found")
)

// ProfileRepository はprofilesテーブルの永続化インターフェース。
// 実装はPostgreSQL直接接続（PostgresProfileRepo）とPostgREST経由（supabase.ProfileTable）の2種類。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Create はプロフィールを作成する。
	// 同一IDが既に存在する場合はErrProfileExistsを返す。
	Create(ctx context.Context, profile *model.Profile) error

	// Update はnilでないフィールドのみを更新し、updated_atをatに設定する。
	// 対象が存在しない場合はErrProfileNotFoundを返す。
	Update(ctx context.Context, id string, update model.ProfileUpdate, at time.Time) error
}

// StoredSession は永続化するセッショントークン一式。
// model.SessionはトークンをJSONに出力しないため、保存用に別の型を持つ。
type StoredSession struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	User         model.Identity `json:"user"`
}

// ToSession はmodel.Sessionに変換する。
func (s *StoredSession) ToSession() *model.Session {
	return &model.Session{
		User:         s.User,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
	}
}

// NewStoredSession はmodel.Sessionから保存用の値を生成する。
func NewStoredSession(s *model.Session) StoredSession {
	return StoredSession{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		User:         s.User,
	}
}

// TokenRepository はクライアントごとのセッショントークンの永続化インターフェース。
// ブラウザのlocalStorageに相当する。
type TokenRepository interface {
	// Load はクライアントのトークンを取得する。見つからない場合はnilを返す。
	Load(ctx context.Context, clientID string) (*StoredSession, error)
	// Save はクライアントのトークンを保存する。
	Save(ctx context.Context, clientID string, session StoredSession) error
	// Delete はクライアントのトークンを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, clientID string) error
}
