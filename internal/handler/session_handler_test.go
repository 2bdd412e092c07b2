package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/revculture/internal/middleware"
	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/session"
)

// --- モック ---

type mockSessionManager struct {
	mu        sync.Mutex
	state     session.State
	signUpFn  func(ctx context.Context, email, password, username string) (*model.Identity, error)
	signInFn  func(ctx context.Context, email, password string) (*model.Identity, error)
	signOutFn func(ctx context.Context) error
	watchCh   chan session.State
	cleared   int
}

func (m *mockSessionManager) Snapshot() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockSessionManager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
	m.state.Error = nil
}

func (m *mockSessionManager) SignUp(ctx context.Context, email, password, username string) (*model.Identity, error) {
	return m.signUpFn(ctx, email, password, username)
}

func (m *mockSessionManager) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	return m.signInFn(ctx, email, password)
}

func (m *mockSessionManager) SignOut(ctx context.Context) error {
	return m.signOutFn(ctx)
}

func (m *mockSessionManager) Watch(ctx context.Context) <-chan session.State {
	return m.watchCh
}

func (m *mockSessionManager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.User == nil {
		return ""
	}
	return m.state.User.ID
}

type authorizedKey struct{}

func (m *mockSessionManager) Authorize(ctx context.Context) context.Context {
	return context.WithValue(ctx, authorizedKey{}, true)
}

type mockSessionProvider struct {
	manager   SessionManager
	err       error
	clientIDs []string

	mu      sync.Mutex
	touched []string
}

func (p *mockSessionProvider) Session(ctx context.Context, clientID string) (SessionManager, error) {
	p.clientIDs = append(p.clientIDs, clientID)
	if p.err != nil {
		return nil, p.err
	}
	return p.manager, nil
}

func (p *mockSessionProvider) Touch(clientID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touched = append(p.touched, clientID)
	return true
}

func (p *mockSessionProvider) touchedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.touched...)
}

func signedInState() session.State {
	return session.State{
		User:        &model.Identity{ID: "user-1", Email: "a@example.com"},
		Initialized: true,
		Status:      session.StatusAuthenticated,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// withClient はクライアントミドルウェアを通過したリクエストを作る。
func withClient(req *http.Request) *http.Request {
	return req.WithContext(middleware.ContextWithClientID(req.Context(), "client-1"))
}

// --- テスト ---

func TestSessionHandler_GetSession(t *testing.T) {
	provider := &mockSessionProvider{manager: &mockSessionManager{state: signedInState()}}
	h := NewSessionHandler(provider, "http://localhost:5173", discardLogger())

	w := httptest.NewRecorder()
	h.GetSession(w, withClient(httptest.NewRequest(http.MethodGet, "/api/session", nil)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var st session.State
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if st.User == nil || st.User.ID != "user-1" || st.Status != session.StatusAuthenticated {
		t.Errorf("state = %+v", st)
	}
	if len(provider.clientIDs) != 1 || provider.clientIDs[0] != "client-1" {
		t.Errorf("client IDs = %v", provider.clientIDs)
	}
}

func TestSessionHandler_GetSession_ErrorsAreSurfaced(t *testing.T) {
	st := session.State{
		Error:       model.NewAuthError(model.AuthErrInvalidCredentials, errors.New("raw provider text")),
		Initialized: true,
		Status:      session.StatusUnauthenticated,
	}
	h := NewSessionHandler(&mockSessionProvider{manager: &mockSessionManager{state: st}}, "", discardLogger())

	w := httptest.NewRecorder()
	h.GetSession(w, withClient(httptest.NewRequest(http.MethodGet, "/api/session", nil)))

	body := w.Body.String()
	if !strings.Contains(body, "Invalid email or password.") {
		t.Errorf("body should carry the user-facing message: %s", body)
	}
	if strings.Contains(body, "raw provider text") {
		t.Errorf("provider error must not leak: %s", body)
	}
}

func TestSessionHandler_MissingClientID(t *testing.T) {
	h := NewSessionHandler(&mockSessionProvider{}, "", discardLogger())

	w := httptest.NewRecorder()
	h.GetSession(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSessionHandler_ProviderFailure(t *testing.T) {
	h := NewSessionHandler(&mockSessionProvider{err: errors.New("redis down")}, "", discardLogger())

	w := httptest.NewRecorder()
	h.GetSession(w, withClient(httptest.NewRequest(http.MethodGet, "/api/session", nil)))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "redis") {
		t.Error("internal error detail must not leak")
	}
}

func TestSessionHandler_ClearError(t *testing.T) {
	m := &mockSessionManager{state: session.State{Error: model.NewAuthError(model.AuthErrUnknown, nil)}}
	h := NewSessionHandler(&mockSessionProvider{manager: m}, "", discardLogger())

	w := httptest.NewRecorder()
	h.ClearError(w, withClient(httptest.NewRequest(http.MethodDelete, "/api/session/error", nil)))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if m.cleared != 1 || m.Snapshot().Error != nil {
		t.Errorf("cleared = %d, error = %v", m.cleared, m.Snapshot().Error)
	}
}

func TestSessionHandler_Events_StreamsStates(t *testing.T) {
	m := &mockSessionManager{watchCh: make(chan session.State, 2)}
	h := NewSessionHandler(&mockSessionProvider{manager: m}, "http://localhost:5173", discardLogger())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Events(w, withClient(r))
	}))
	defer srv.Close()

	m.watchCh <- session.State{Loading: true, Status: session.StatusInitializing}
	m.watchCh <- signedInState()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://localhost:5173"}})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first, second session.State
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if first.Status != session.StatusInitializing || second.Status != session.StatusAuthenticated {
		t.Errorf("statuses = %s, %s", first.Status, second.Status)
	}

	// マネージャーが閉じられると接続も閉じる
	close(m.watchCh)
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("err = %v, want close going away", err)
	}
}

func TestSessionHandler_Events_TouchesClientOnPing(t *testing.T) {
	m := &mockSessionManager{watchCh: make(chan session.State, 1)}
	provider := &mockSessionProvider{manager: m}
	h := NewSessionHandler(provider, "http://localhost:5173", discardLogger())
	h.pingPeriod = 10 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Events(w, withClient(r))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://localhost:5173"}})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// 読み取りを続けてpingにpongを返す
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(provider.touchedIDs()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not touched while the stream was open")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := provider.touchedIDs()[0]; got != "client-1" {
		t.Errorf("touched = %q, want client-1", got)
	}
}

func TestSessionHandler_Events_RejectsForeignOrigin(t *testing.T) {
	m := &mockSessionManager{watchCh: make(chan session.State)}
	h := NewSessionHandler(&mockSessionProvider{manager: m}, "http://localhost:5173", discardLogger())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Events(w, withClient(r))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v, want 403", resp)
	}
}
