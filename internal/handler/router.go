package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/revculture/internal/metrics"
	"github.com/hitoshi/revculture/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector

	// ミドルウェア依存
	CORSAllowedOrigin string
	CookieSecure      bool
	CookieDomain      string
	RateLimiter       *middleware.RateLimiter

	// 運用エンドポイント
	HealthChecks   map[string]HealthChecker
	MetricsHandler http.Handler

	// セッション
	Sessions SessionProvider

	// プロフィール
	ProfileService ProfileServiceInterface
	MaxAvatarSize  int64

	// 表示専用データ
	Catalog CatalogReader
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Client → RateLimit(General) → CSRF
//
// サインアップとサインインには認証用のレート制限を追加で適用する。
// /health と /metrics はクライアントCookieとレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}

	sessionHandler := NewSessionHandler(deps.Sessions, deps.CORSAllowedOrigin, deps.Logger)
	authHandler := NewAuthHandler(deps.Sessions)
	profileHandler := NewProfileHandler(deps.Sessions, deps.ProfileService, deps.MaxAvatarSize)
	catalogHandler := NewCatalogHandler(deps.Catalog)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecks))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- API ---
	// ミドルウェアスタック: Client → RateLimit(General) → CSRF
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewClientMiddleware(middleware.ClientCookieConfig{
			CookieSecure: deps.CookieSecure,
			CookieDomain: deps.CookieDomain,
		}))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

		// セッション状態
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)
			r.Delete("/error", sessionHandler.ClearError)
			r.Get("/events", sessionHandler.Events)
		})

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/signup", authHandler.SignUp)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/signin", authHandler.SignIn)
			r.Post("/signout", authHandler.SignOut)
		})

		// プロフィール
		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
			r.Post("/avatar", profileHandler.UploadAvatar)
		})

		// 表示専用データ
		r.Get("/feed", catalogHandler.GetFeed)
		r.Get("/explore", catalogHandler.GetExplore)
		r.Get("/events", catalogHandler.GetEvents)
		r.Get("/notifications", catalogHandler.GetNotifications)
	})

	return r
}
