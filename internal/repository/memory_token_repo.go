package repository

import (
	"context"
	"sync"
)

// MemoryTokenRepo はプロセス内メモリにトークンを保持するリポジトリ。
// REDIS_URL未設定時に使用する。再起動でセッションは失われる。
type MemoryTokenRepo struct {
	mu       sync.RWMutex
	sessions map[string]StoredSession
}

// NewMemoryTokenRepo はMemoryTokenRepoを生成する。
func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{sessions: make(map[string]StoredSession)}
}

// Load はクライアントのトークンを取得する。見つからない場合はnilを返す。
func (r *MemoryTokenRepo) Load(_ context.Context, clientID string) (*StoredSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[clientID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Save はクライアントのトークンを保存する。
func (r *MemoryTokenRepo) Save(_ context.Context, clientID string, session StoredSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[clientID] = session
	return nil
}

// Delete はクライアントのトークンを削除する。
func (r *MemoryTokenRepo) Delete(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, clientID)
	return nil
}

// compile-time interface check
var _ TokenRepository = (*MemoryTokenRepo)(nil)
