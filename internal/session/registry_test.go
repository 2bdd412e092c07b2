package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/revculture/internal/metrics"
)

// gaugeRecorder はSetActiveSessionsの最終値を記録する。
type gaugeRecorder struct {
	metrics.Nop
	mu   sync.Mutex
	last int
}

func (g *gaugeRecorder) SetActiveSessions(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = n
}

type testRegistry struct {
	*Registry
	gateways map[string]*mockGateway
	clock    time.Time
	gauge    *gaugeRecorder
	created  int
}

func newTestRegistry() *testRegistry {
	tr := &testRegistry{
		gateways: make(map[string]*mockGateway),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		gauge:    &gaugeRecorder{},
	}
	tr.Registry = NewRegistry(func(clientID string) (*Manager, error) {
		tr.created++
		gw := &mockGateway{}
		tr.gateways[clientID] = gw
		m, _ := newTestManager(gw, newFakeProfileStore())
		return m, nil
	}, tr.gauge, newTestLogger())
	tr.Registry.now = func() time.Time { return tr.clock }
	return tr
}

func TestRegistry_GetCreatesAndInitializesOnce(t *testing.T) {
	r := newTestRegistry()
	defer r.CloseAll()
	ctx := context.Background()

	m1, err := r.Get(ctx, "client-a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !m1.Snapshot().Initialized {
		t.Error("manager should be initialized on first use")
	}

	m2, err := r.Get(ctx, "client-a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if m1 != m2 {
		t.Error("Get should return the same manager for the same client")
	}
	if r.created != 1 {
		t.Errorf("factory calls = %d, want 1", r.created)
	}
	if r.gateways["client-a"].currentSessionCalls != 1 {
		t.Errorf("CurrentSession calls = %d, want 1", r.gateways["client-a"].currentSessionCalls)
	}
	if r.gauge.last != 1 {
		t.Errorf("active sessions = %d, want 1", r.gauge.last)
	}
}

func TestRegistry_SeparateClients(t *testing.T) {
	r := newTestRegistry()
	defer r.CloseAll()

	a, _ := r.Get(context.Background(), "client-a")
	b, _ := r.Get(context.Background(), "client-b")
	if a == b {
		t.Error("different clients should get different managers")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry(func(clientID string) (*Manager, error) {
		return nil, errors.New("redis unavailable")
	}, nil, newTestLogger())

	if _, err := r.Get(context.Background(), "client-a"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	old, _ := r.Get(ctx, "client-old")
	r.clock = r.clock.Add(20 * time.Minute)
	_, _ = r.Get(ctx, "client-new")
	r.clock = r.clock.Add(15 * time.Minute)

	evicted := r.EvictIdle(30 * time.Minute)
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	if r.gauge.last != 1 {
		t.Errorf("active sessions = %d, want 1", r.gauge.last)
	}
	if r.gateways["client-old"].unsubscribeCalls != 1 {
		t.Error("evicted manager should be closed")
	}
	if _, ok := <-old.Watch(context.Background()); ok {
		t.Error("evicted manager should not accept watchers")
	}
}

func TestRegistry_TouchKeepsAlive(t *testing.T) {
	r := newTestRegistry()
	defer r.CloseAll()

	_, _ = r.Get(context.Background(), "client-a")
	r.clock = r.clock.Add(25 * time.Minute)
	if !r.Touch("client-a") {
		t.Fatal("Touch should report existing client")
	}
	r.clock = r.clock.Add(25 * time.Minute)

	if evicted := r.EvictIdle(30 * time.Minute); evicted != 0 {
		t.Errorf("evicted = %d, want 0", evicted)
	}
	if r.Touch("unknown") {
		t.Error("Touch should report false for unknown client")
	}
}

func TestRegistry_EvictIdle_KeepsWatchedManager(t *testing.T) {
	r := newTestRegistry()
	defer r.CloseAll()

	m, _ := r.Get(context.Background(), "client-a")
	ctx, cancel := context.WithCancel(context.Background())
	updates := m.Watch(ctx)
	<-updates

	r.clock = r.clock.Add(time.Hour)
	if evicted := r.EvictIdle(30 * time.Minute); evicted != 0 {
		t.Fatalf("evicted = %d, want 0 while watched", evicted)
	}
	if r.gateways["client-a"].unsubscribeCalls != 0 {
		t.Error("watched manager should stay open")
	}

	// 購読終了後は通常どおり破棄される
	cancel()
	for _, ok := <-updates; ok; _, ok = <-updates {
	}
	if evicted := r.EvictIdle(30 * time.Minute); evicted != 1 {
		t.Errorf("evicted = %d, want 1 after watcher left", evicted)
	}
}
