package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/revculture/internal/model"
	"github.com/hitoshi/revculture/internal/repository"
	"github.com/hitoshi/revculture/internal/supabase"
)

// AuthAPI はSupabaseGatewayが使用するGoTrue APIのインターフェース。
// *supabase.Clientが実装する。
type AuthAPI interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*supabase.User, *supabase.AuthSession, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.AuthSession, error)
	RefreshSession(ctx context.Context, refreshToken string) (*supabase.AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// SupabaseGateway はクライアント1つ分の認証状態を持つGatewayの実装。
// トークンはTokenRepositoryにクライアントIDをキーとして保存する。
type SupabaseGateway struct {
	api      AuthAPI
	tokens   repository.TokenRepository
	clientID string
	verifier *TokenVerifier // nilの場合は/auth/v1/userで検証する
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	session *model.Session

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
	pending   sync.WaitGroup
	lastEmit  chan struct{} // 直前に発行したイベントの配信完了
}

// NewSupabaseGateway はSupabaseGatewayを生成する。verifierはnilでもよい。
func NewSupabaseGateway(api AuthAPI, tokens repository.TokenRepository, clientID string, verifier *TokenVerifier, logger *slog.Logger) *SupabaseGateway {
	return &SupabaseGateway{
		api:       api,
		tokens:    tokens,
		clientID:  clientID,
		verifier:  verifier,
		logger:    logger.With(slog.String("client_id", clientID)),
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// SignUp はユーザーを登録する。usernameはuser_metadataに保存する。
func (g *SupabaseGateway) SignUp(ctx context.Context, email, password, username string) (*model.Identity, *model.Session, error) {
	user, resp, err := g.api.SignUp(ctx, email, password, map[string]any{"username": username})
	if err != nil {
		return nil, nil, mapError(opSignUp, err)
	}

	identity := user.Identity()
	if resp == nil {
		g.logger.Info("sign-up requires email confirmation", slog.String("user_id", identity.ID))
		return &identity, nil, nil
	}

	session := resp.ToSession(g.now())
	if err := g.store(ctx, session); err != nil {
		return nil, nil, err
	}
	g.emit(model.AuthEventSignedIn, session)
	return &identity, copySession(session), nil
}

// SignIn はメールアドレスとパスワードでサインインする。
func (g *SupabaseGateway) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := g.api.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, mapError(opSignIn, err)
	}

	session := resp.ToSession(g.now())
	if err := g.store(ctx, session); err != nil {
		return nil, err
	}
	g.emit(model.AuthEventSignedIn, session)
	return copySession(session), nil
}

// SignOut は現在のセッションをバックエンドで失効させ、保存済みトークンを削除する。
// バックエンドで既にセッションが無効な場合も成功として扱う。
func (g *SupabaseGateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	session := g.session
	if session == nil {
		stored, err := g.tokens.Load(ctx, g.clientID)
		if err != nil {
			return mapError(opSignOut, fmt.Errorf("failed to load session tokens: %w", err))
		}
		if stored != nil {
			session = stored.ToSession()
		}
	}

	if session != nil && session.AccessToken != "" {
		if err := g.api.SignOut(ctx, session.AccessToken); err != nil && !isRejected(err) {
			return mapError(opSignOut, err)
		}
	}

	if err := g.clearLocked(ctx); err != nil {
		return mapError(opSignOut, err)
	}
	g.emit(model.AuthEventSignedOut, nil)
	return nil
}

// CurrentSession は保存済みのセッションを復元して返す。
// 期限切れのアクセストークンはリフレッシュし、リフレッシュが拒否された場合はトークンを削除してnilを返す。
func (g *SupabaseGateway) CurrentSession(ctx context.Context) (*model.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session := g.session
	restored := false
	if session == nil {
		stored, err := g.tokens.Load(ctx, g.clientID)
		if err != nil {
			return nil, mapError(opSession, fmt.Errorf("failed to load session tokens: %w", err))
		}
		if stored == nil {
			return nil, nil
		}
		session = stored.ToSession()
		restored = true
	}

	if !session.Expired(g.now()) {
		valid, err := g.validate(ctx, session, restored)
		if err != nil {
			return nil, err
		}
		if valid {
			g.session = session
			return copySession(session), nil
		}
	}

	return g.refreshLocked(ctx, session, !restored)
}

// Subscribe はリスナーを登録する。リスナーは呼び出し元とは別のgoroutineで、イベントの発生順に呼び出される。
func (g *SupabaseGateway) Subscribe(listener Listener) func() {
	g.lmu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = listener
	g.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.lmu.Lock()
			delete(g.listeners, id)
			g.lmu.Unlock()
		})
	}
}

// Authorize は現在のアクセストークンを付与したcontextを返す。
// セッションがない場合はctxをそのまま返す。
func (g *SupabaseGateway) Authorize(ctx context.Context) context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil || g.session.AccessToken == "" {
		return ctx
	}
	return supabase.ContextWithAccessToken(ctx, g.session.AccessToken)
}

// validate は期限内のトークンが有効かどうかを確認する。
// 署名検証できない場合やバックエンドに拒否された場合はfalseを返し、呼び出し元でリフレッシュする。
func (g *SupabaseGateway) validate(ctx context.Context, session *model.Session, restored bool) (bool, error) {
	if g.verifier != nil {
		claims, err := g.verifier.Verify(session.AccessToken)
		if err != nil {
			g.logger.Debug("access token failed local verification", slog.String("error", err.Error()))
			return false, nil
		}
		if session.User.ID == "" {
			session.User.ID = claims.Subject
		}
		if session.User.Email == "" {
			session.User.Email = claims.Email
		}
		return true, nil
	}

	if !restored {
		return true, nil
	}

	user, err := g.api.GetUser(ctx, session.AccessToken)
	if err != nil {
		if isRejected(err) {
			return false, nil
		}
		return false, mapError(opSession, err)
	}
	session.User = user.Identity()
	return true, nil
}

// refreshLocked はリフレッシュトークンでセッションを更新する。g.muを保持して呼ぶこと。
// wasActiveがtrueの場合、拒否時にSIGNED_OUTを通知する。
func (g *SupabaseGateway) refreshLocked(ctx context.Context, session *model.Session, wasActive bool) (*model.Session, error) {
	if session.RefreshToken == "" {
		if err := g.clearLocked(ctx); err != nil {
			return nil, mapError(opSession, err)
		}
		return nil, nil
	}

	resp, err := g.api.RefreshSession(ctx, session.RefreshToken)
	if err != nil {
		if !isRejected(err) {
			return nil, mapError(opSession, err)
		}
		g.logger.Info("refresh token rejected, clearing session", slog.String("error", err.Error()))
		if clearErr := g.clearLocked(ctx); clearErr != nil {
			return nil, mapError(opSession, clearErr)
		}
		if wasActive {
			g.emit(model.AuthEventSignedOut, nil)
		}
		return nil, nil
	}

	refreshed := resp.ToSession(g.now())
	if refreshed.User.ID == "" {
		refreshed.User = session.User
	}
	if err := g.tokens.Save(ctx, g.clientID, repository.NewStoredSession(refreshed)); err != nil {
		return nil, mapError(opSession, fmt.Errorf("failed to save session tokens: %w", err))
	}
	g.session = refreshed
	g.emit(model.AuthEventTokenRefreshed, refreshed)
	return copySession(refreshed), nil
}

// store は新しいセッションを保存してキャッシュする。
func (g *SupabaseGateway) store(ctx context.Context, session *model.Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.tokens.Save(ctx, g.clientID, repository.NewStoredSession(session)); err != nil {
		return fmt.Errorf("failed to save session tokens: %w", err)
	}
	g.session = session
	return nil
}

func (g *SupabaseGateway) clearLocked(ctx context.Context) error {
	g.session = nil
	if err := g.tokens.Delete(ctx, g.clientID); err != nil {
		return fmt.Errorf("failed to delete session tokens: %w", err)
	}
	return nil
}

// emit は登録済みリスナーへイベントを非同期に通知する。
// 各イベントは直前のイベントの配信完了を待ってから配信する。
func (g *SupabaseGateway) emit(event model.AuthEvent, session *model.Session) {
	g.lmu.Lock()
	listeners := make([]Listener, 0, len(g.listeners))
	for _, l := range g.listeners {
		listeners = append(listeners, l)
	}
	prev := g.lastEmit
	done := make(chan struct{})
	g.lastEmit = done
	g.pending.Add(1)
	g.lmu.Unlock()

	go func(s *model.Session) {
		defer g.pending.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		for _, l := range listeners {
			l(event, copySession(s))
		}
	}(copySession(session))
}

// Wait は配信中のイベント通知がすべて完了するまで待つ。
func (g *SupabaseGateway) Wait() {
	g.pending.Wait()
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// compile-time interface check
var (
	_ Gateway = (*SupabaseGateway)(nil)
	_ AuthAPI = (*supabase.Client)(nil)
)
