package handler

import (
	"context"

	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/session"
)

// SessionManager はハンドラーが利用する1クライアント分のセッション操作。*session.Managerが実装する。
type SessionManager interface {
	Snapshot() session.State
	ClearError()
	SignUp(ctx context.Context, email, password, username string) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
	SignOut(ctx context.Context) error
	Watch(ctx context.Context) <-chan session.State
	UserID() string
	Authorize(ctx context.Context) context.Context
}

// SessionProvider はクライアントIDに対応する初期化済みのSessionManagerを返す。
type SessionProvider interface {
	Session(ctx context.Context, clientID string) (SessionManager, error)
	// Touch はclientIDの最終アクセス時刻を更新する。存在しない場合はfalseを返す。
	Touch(clientID string) bool
}

// RegistryAdapter は session.Registry を SessionProvider に適合させるアダプタ。
type RegistryAdapter struct {
	registry *session.Registry
}

// NewRegistryAdapter はRegistryAdapterを生成する。
func NewRegistryAdapter(registry *session.Registry) *RegistryAdapter {
	return &RegistryAdapter{registry: registry}
}

// Session はレジストリからマネージャーを取得する。初回はマネージャーの生成と初期化を行う。
func (a *RegistryAdapter) Session(ctx context.Context, clientID string) (SessionManager, error) {
	m, err := a.registry.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Touch はWebSocket接続中のクライアントをアイドル破棄の対象から外す。
func (a *RegistryAdapter) Touch(clientID string) bool {
	return a.registry.Touch(clientID)
}

// compile-time interface check
var (
	_ SessionManager  = (*session.Manager)(nil)
	_ SessionProvider = (*RegistryAdapter)(nil)
)
