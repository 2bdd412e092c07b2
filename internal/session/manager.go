// Package session はクライアントごとの認証状態を保持するセッションマネージャーを提供する。
//
// Managerはクライアント単位で明示的に生成され、Auth Gatewayの購読とプロフィールの自動作成を受け持つ。
// 初期化時のセッション取得と購読イベントは競合しうるが、状態は最後に書き込んだ側を採用する。
// それ以外では、プロフィール確保の間に新しい認証操作やイベントが確定したイベントの結果は捨てる。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/revculture/internal/auth"
	"github.com/hitoshi/revculture/internal/metrics"
	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/repository"
)

// DefaultNoticeDismissAfter はエラー通知を自動で消すまでの既定の時間。
const DefaultNoticeDismissAfter = 5 * time.Second

// Status はStateから導出される状態機械上の位置。
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusInitializing    Status = "initializing"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// State はセッションマネージャーが公開する状態。
// Errorは他のフィールドと独立に設定・解除される。
type State struct {
	User        *model.Identity  `json:"user"`
	Loading     bool             `json:"loading"`
	Error       *model.AuthError `json:"error"`
	Initialized bool             `json:"initialized"`
	Status      Status           `json:"status"`
}

// ProfileStore はセッションマネージャーが利用するプロフィール操作。*profile.Serviceが実装する。
type ProfileStore interface {
	EnsureExists(ctx context.Context, id, username string, fullName *string) (bool, error)
	CreateProfile(ctx context.Context, p *model.Profile) error
	UpsertProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)
}

// Options はManagerの任意設定。
type Options struct {
	// NoticeDismissAfter はエラーを自動で消すまでの時間。0の場合はDefaultNoticeDismissAfter、負の場合は自動で消さない。
	NoticeDismissAfter time.Duration
	Logger             *slog.Logger
	Metrics            metrics.MetricsCollector
}

// Manager は1クライアント分の認証状態を管理する。
type Manager struct {
	gateway      auth.Gateway
	profiles     ProfileStore
	logger       *slog.Logger
	metrics      metrics.MetricsCollector
	dismissAfter time.Duration

	// schedule はfをd後に実行し、停止関数を返す。テストで差し替える。
	schedule func(d time.Duration, f func()) (stop func() bool)

	// baseCtx は購読コールバックからのプロフィール操作に使う。Closeでキャンセルされる。
	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	initOnce    sync.Once
	unsubscribe func()

	mu          sync.Mutex
	state       State
	closed      bool
	errGen      uint64
	authGen     uint64 // 認証状態の遷移ごとに進む
	stopDismiss func() bool
	watchers    map[int]chan State
	nextWatcher int
}

// NewManager はManagerを生成する。Initializeを呼ぶまで状態はuninitialized。
func NewManager(gateway auth.Gateway, profiles ProfileStore, opts Options) *Manager {
	if opts.NoticeDismissAfter == 0 {
		opts.NoticeDismissAfter = DefaultNoticeDismissAfter
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		gateway:      gateway,
		profiles:     profiles,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		dismissAfter: opts.NoticeDismissAfter,
		schedule: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		baseCtx:  ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		watchers: make(map[int]chan State),
	}
}

// Initialize は購読を開始し、保存済みセッションを復元する。
// 2回目以降の呼び出しは何もしない。並行して呼ばれた場合は最初の呼び出しの完了を待つ。
// 成否にかかわらず、終了時にはinitialized=true、loading=falseになる。
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		if !m.update(func(s *State) { s.Loading = true }) {
			return
		}

		unsubscribe := m.gateway.Subscribe(m.HandleAuthStateChange)
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			unsubscribe()
			return
		}
		m.unsubscribe = unsubscribe
		m.mu.Unlock()

		current, err := m.gateway.CurrentSession(ctx)
		if err != nil {
			authErr := model.AsAuthError(err, model.AuthErrUnknown)
			m.logger.Warn("セッションの復元に失敗しました",
				slog.String("kind", string(authErr.Kind)),
				slog.String("error", err.Error()),
			)
			m.metrics.RecordAuthError(string(authErr.Kind))
			m.update(func(s *State) {
				m.recordErrorLocked(authErr)
				s.Initialized = true
				s.Loading = false
			})
			return
		}

		var user *model.Identity
		if current != nil {
			m.EnsureProfileExists(m.gateway.Authorize(ctx), current.User)
			u := current.User
			user = &u
		}
		m.update(func(s *State) {
			s.User = user
			s.Initialized = true
			s.Loading = false
		})
	})
}

// HandleAuthStateChange はAuth Gatewayからの状態変化を反映する。
// セッションがあればプロフィールを確保してからユーザーを設定し、なければユーザーを解除する。
// Close後の呼び出しは無視する。
func (m *Manager) HandleAuthStateChange(event model.AuthEvent, current *model.Session) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.authGen++
	gen := m.authGen
	m.mu.Unlock()

	var user *model.Identity
	if current != nil {
		m.EnsureProfileExists(m.gateway.Authorize(m.baseCtx), current.User)
		u := current.User
		user = &u
	}

	stale := false
	if m.update(func(s *State) {
		if m.authGen != gen {
			stale = true
			return
		}
		s.User = user
		s.Loading = false
	}) {
		if stale {
			m.logger.Debug("古い認証イベントを破棄しました", slog.String("event", string(event)))
			return
		}
		m.logger.Debug("認証状態が変化しました", slog.String("event", string(event)))
	}
}

// EnsureProfileExists はidentityのプロフィールがなければ作成する。
// 失敗はログに記録するだけで呼び出し元には返さない。
func (m *Manager) EnsureProfileExists(ctx context.Context, identity model.Identity) {
	var fullName *string
	if identity.FullName != "" {
		fullName = model.StringPtr(identity.FullName)
	}
	if _, err := m.profiles.EnsureExists(ctx, identity.ID, identity.Email, fullName); err != nil {
		m.logger.Error("プロフィールの作成確認に失敗しました",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}
}

// SignUp はユーザーを登録し、指定されたusernameでプロフィールを作成する。
// メール確認が必要でセッションが発行されなかった場合、userは設定しない。
func (m *Manager) SignUp(ctx context.Context, email, password, username string) (*model.Identity, error) {
	if !m.update(func(s *State) { s.Loading = true }) {
		return nil, errClosed
	}

	identity, current, err := m.gateway.SignUp(ctx, email, password, username)
	if err != nil {
		return nil, m.fail("sign_up", err, model.AuthErrSignUpFailed)
	}

	pctx := ctx
	if current != nil {
		pctx = m.gateway.Authorize(ctx)
	}
	m.createSignUpProfile(pctx, identity.ID, username)

	m.metrics.RecordAuthAttempt("sign_up", "success")
	m.update(func(s *State) {
		if current != nil {
			u := current.User
			s.User = &u
			m.authGen++
		}
		s.Loading = false
	})
	return identity, nil
}

// createSignUpProfile はサインアップ時に入力されたusernameでプロフィールを作成する。
// 購読イベント側で先に作成されていた場合はusernameと氏名を上書きする。
func (m *Manager) createSignUpProfile(ctx context.Context, id, username string) {
	err := m.profiles.CreateProfile(ctx, &model.Profile{
		ID:       id,
		Username: username,
		FullName: model.StringPtr(username),
	})
	if errors.Is(err, repository.ErrProfileExists) {
		_, err = m.profiles.UpsertProfile(ctx, id, model.ProfileUpdate{
			Username: model.StringPtr(username),
			FullName: model.StringPtr(username),
		})
	}
	if err != nil {
		m.logger.Error("サインアップ時のプロフィール作成に失敗しました",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// SignIn はサインインする。失敗した場合userは変更せず、errorを設定する。
func (m *Manager) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	if !m.update(func(s *State) { s.Loading = true }) {
		return nil, errClosed
	}

	current, err := m.gateway.SignIn(ctx, email, password)
	if err != nil {
		return nil, m.fail("sign_in", err, model.AuthErrSignInFailed)
	}

	m.EnsureProfileExists(m.gateway.Authorize(ctx), current.User)

	m.metrics.RecordAuthAttempt("sign_in", "success")
	u := current.User
	m.update(func(s *State) {
		s.User = &u
		s.Loading = false
		m.authGen++
	})
	return &u, nil
}

// SignOut はサインアウトする。成功時はuserをnilにし、失敗時はuserを残してerrorを設定する。
func (m *Manager) SignOut(ctx context.Context) error {
	if !m.update(func(s *State) { s.Loading = true }) {
		return errClosed
	}

	if err := m.gateway.SignOut(ctx); err != nil {
		return m.fail("sign_out", err, model.AuthErrSignOutFailed)
	}

	m.metrics.RecordAuthAttempt("sign_out", "success")
	m.update(func(s *State) {
		s.User = nil
		s.Loading = false
		m.authGen++
	})
	return nil
}

// fail はエラーを記録してloadingを解除し、呼び出し元に返すAuthErrorを返す。
func (m *Manager) fail(op string, err error, fallback model.AuthErrorKind) *model.AuthError {
	authErr := model.AsAuthError(err, fallback)
	m.metrics.RecordAuthAttempt(op, "failure")
	m.metrics.RecordAuthError(string(authErr.Kind))
	m.logger.Warn("認証操作に失敗しました",
		slog.String("op", op),
		slog.String("kind", string(authErr.Kind)),
		slog.String("error", err.Error()),
	)
	m.update(func(s *State) {
		m.recordErrorLocked(authErr)
		s.Loading = false
	})
	return authErr
}

// ClearError はerrorを解除する。
func (m *Manager) ClearError() {
	m.update(func(s *State) {
		m.errGen++
		if m.stopDismiss != nil {
			m.stopDismiss()
			m.stopDismiss = nil
		}
		s.Error = nil
	})
}

// recordErrorLocked はerrorを設定し、自動解除を予約する。mを保持した状態で呼ぶ。
// 新しいエラーが記録されると、古いエラーの予約は無効になる。
func (m *Manager) recordErrorLocked(err *model.AuthError) {
	m.state.Error = err
	m.errGen++
	if m.stopDismiss != nil {
		m.stopDismiss()
		m.stopDismiss = nil
	}
	if m.dismissAfter < 0 {
		return
	}

	gen := m.errGen
	m.stopDismiss = m.schedule(m.dismissAfter, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed || m.errGen != gen {
			return
		}
		m.state.Error = nil
		m.stopDismiss = nil
		m.publishLocked()
	})
}

// Snapshot は現在の状態のコピーを返す。
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Watch は状態の変化を受け取るチャネルを返す。
// チャネルには購読時点の状態が最初に届き、以降は最新の状態のみが保持される。
// ctxの終了またはCloseでチャネルは閉じられる。
func (m *Manager) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if w, ok := m.watchers[id]; ok {
				delete(m.watchers, id)
				close(w)
			}
			m.mu.Unlock()
		case <-m.done:
		}
	}()

	return ch
}

// Watching は状態を購読中のチャネルがあるかどうかを返す。
func (m *Manager) Watching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers) > 0
}

// Close は購読を解除し、以降の状態更新を止める。複数回呼んでも安全。
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	if m.stopDismiss != nil {
		m.stopDismiss()
		m.stopDismiss = nil
	}
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
	close(m.done)
	m.mu.Unlock()

	m.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// UserID は認証済みユーザーのIDを返す。未認証の場合は空文字列。
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.User == nil {
		return ""
	}
	return m.state.User.ID
}

// Authorize はプロフィール操作用に、現在のセッションの資格情報を付与したcontextを返す。
func (m *Manager) Authorize(ctx context.Context) context.Context {
	return m.gateway.Authorize(ctx)
}

var errClosed = model.NewAuthError(model.AuthErrUnknown, errors.New("session manager is closed"))

func (m *Manager) alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// update はClose前であればfnで状態を更新して購読者に通知する。更新した場合はtrueを返す。
func (m *Manager) update(fn func(s *State)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	fn(&m.state)
	m.publishLocked()
	return true
}

// publishLocked は各購読チャネルの古い状態を捨てて最新の状態を送る。
func (m *Manager) publishLocked() {
	st := m.snapshotLocked()
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (m *Manager) snapshotLocked() State {
	st := m.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	st.Status = deriveStatus(st)
	return st
}

// deriveStatus は初期化前にloadingが立っていれば初期化中とみなす。
func deriveStatus(st State) Status {
	switch {
	case !st.Initialized && !st.Loading:
		return StatusUninitialized
	case !st.Initialized:
		return StatusInitializing
	case st.User != nil:
		return StatusAuthenticated
	default:
		return StatusUnauthenticated
	}
}
