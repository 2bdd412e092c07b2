package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/revculture/internal/metrics"
)

// Factory はクライアントIDに対応するManagerを生成する。
type Factory func(clientID string) (*Manager, error)

type entry struct {
	manager  *Manager
	lastSeen time.Time
}

// Registry はクライアントIDごとのManagerを保持する。
// Managerは初回アクセス時に生成・初期化され、一定時間アクセスがなければEvictIdleで破棄される。
type Registry struct {
	factory Factory
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry はRegistryを生成する。
func NewRegistry(factory Factory, collector metrics.MetricsCollector, logger *slog.Logger) *Registry {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Registry{
		factory: factory,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Get はclientIDのManagerを返す。存在しなければ生成し、初期化を完了してから返す。
func (r *Registry) Get(ctx context.Context, clientID string) (*Manager, error) {
	r.mu.Lock()
	e, ok := r.entries[clientID]
	if ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		e.manager.Initialize(ctx)
		return e.manager, nil
	}

	m, err := r.factory(clientID)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	r.entries[clientID] = &entry{manager: m, lastSeen: r.now()}
	n := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	m.Initialize(ctx)
	return m, nil
}

// Touch はclientIDの最終アクセス時刻を更新する。存在しない場合はfalseを返す。
func (r *Registry) Touch(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[clientID]
	if ok {
		e.lastSeen = r.now()
	}
	return ok
}

// EvictIdle はttl以上アクセスのないManagerを破棄し、破棄した件数を返す。
// 状態を購読中のManagerは接続が続いているため破棄しない。
func (r *Registry) EvictIdle(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var evicted []*Manager
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) && !e.manager.Watching() {
			evicted = append(evicted, e.manager)
			delete(r.entries, id)
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	for _, m := range evicted {
		m.Close()
	}
	r.metrics.SetActiveSessions(n)
	if len(evicted) > 0 && r.logger != nil {
		r.logger.Info("idle sessions evicted",
			slog.Int("evicted", len(evicted)),
			slog.Int("remaining", n),
		)
	}
	return len(evicted)
}

// Len は保持しているManagerの数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll は全てのManagerを破棄する。シャットダウン時に呼ぶ。
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.manager.Close()
	}
	r.metrics.SetActiveSessions(0)
}
