package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/revculture/internal/config"
	"github.com/hitoshi/revculture/internal/session"
)

func setTestEnv(t *testing.T, supabaseURL string) {
	t.Helper()
	t.Setenv("SUPABASE_URL", supabaseURL)
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")
	t.Setenv("SUPABASE_JWT_SECRET", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("EXPLORE_FEED_URLS", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t, "https://xyz.supabase.co")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.SupabaseURL != "https://xyz.supabase.co" {
		t.Errorf("SupabaseURL = %q", cfg.SupabaseURL)
	}

	// LOG_LEVELが反映され、JSONで出力されること
	slog.Default().Debug("init test")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" || entry["level"] != "DEBUG" {
		t.Errorf("entry = %v", entry)
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	setTestEnv(t, "")
	t.Setenv("SUPABASE_ANON_KEY", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
	if !strings.Contains(err.Error(), "SUPABASE_URL") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestRun_MigrateWithoutDatabaseURL_ReturnsError(t *testing.T) {
	setTestEnv(t, "https://xyz.supabase.co")

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("err = %v, want DATABASE_URL error", err)
	}
}

func TestRun_Healthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, port, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	t.Setenv("SERVER_PORT", port)

	if err := Run(nil, []string{"healthcheck"}); err != nil {
		t.Errorf("healthcheck returned error: %v", err)
	}

	srv.Close()
	if err := Run(nil, []string{"healthcheck"}); err == nil {
		t.Error("healthcheck should fail when the server is down")
	}
}

func newBackendStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/health" {
			w.Write([]byte(`{"name":"GoTrue"}`))
			return
		}
		t.Errorf("unexpected backend request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewApplication_WiresInMemoryStack(t *testing.T) {
	backend := newBackendStub(t)
	setTestEnv(t, backend.URL)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	app, err := newApplication(context.Background(), cfg, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newApplication: %v", err)
	}
	defer app.close()
	defer app.limiter.Stop()
	defer app.registry.CloseAll()

	if app.importer.FeedCount() != 0 {
		t.Errorf("FeedCount = %d, want 0", app.importer.FeedCount())
	}
	if app.sweeper.IdleTTL != cfg.ClientIdleTTL {
		t.Errorf("IdleTTL = %v, want %v", app.sweeper.IdleTTL, cfg.ClientIdleTTL)
	}

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/api/session status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var st session.State
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if !st.Initialized || st.User != nil || st.Status != session.StatusUnauthenticated {
		t.Errorf("state = %+v, want initialized and signed out", st)
	}
	if app.registry.Len() != 1 {
		t.Errorf("registry.Len = %d, want 1", app.registry.Len())
	}

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "revculture_active_sessions") {
		t.Errorf("metrics output should include the active sessions gauge")
	}
}

func TestNewApplication_RedisUnavailable_ReturnsError(t *testing.T) {
	backend := newBackendStub(t)
	setTestEnv(t, backend.URL)
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1/0")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	if _, err := newApplication(context.Background(), cfg, prometheus.NewRegistry()); err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://postgres:secret@db:5432/postgres?sslmode=disable")
	if strings.Contains(got, "secret") {
		t.Errorf("password leaked: %s", got)
	}
	if !strings.Contains(got, "db:5432") {
		t.Errorf("host should remain visible: %s", got)
	}
	if maskDatabaseURL("not a url") != "***" {
		t.Error("unparseable URL should be fully masked")
	}
}
