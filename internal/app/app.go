package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/revculture/internal/auth"
	"github.com/hitoshi/revculture/internal/catalog"
	"github.com/hitoshi/revculture/internal/config"
	"github.com/hitoshi/revculture/internal/database"
	"github.com/hitoshi/revculture/internal/handler"
	"github.com/hitoshi/revculture/internal/logger"
	"github.com/hitoshi/revculture/internal/metrics"
	"github.com/hitoshi/revculture/internal/middleware"
	"github.com/hitoshi/revculture/internal/profile"
	"github.com/hitoshi/revculture/internal/repository"
	"github.com/hitoshi/revculture/internal/security"
	"github.com/hitoshi/revculture/internal/session"
	"github.com/hitoshi/revculture/internal/supabase"
	"github.com/hitoshi/revculture/internal/worker/explore"
	"github.com/hitoshi/revculture/internal/worker/sweeper"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// application はserveモードで組み立てた依存関係を保持する。
type application struct {
	router   http.Handler
	registry *session.Registry
	limiter  *middleware.RateLimiter
	importer *explore.Importer
	sweeper  *sweeper.SweepJob
	closers  []func() error
}

// close は開いた接続を逆順に閉じる。
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// newApplication は設定から全依存関係をワイヤリングする。
// 失敗した場合はそれまでに開いた接続を閉じてからエラーを返す。
func newApplication(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	log := slog.Default()
	collector := metrics.NewCollector(reg)

	// 1. マネージドバックエンドのクライアント
	sb := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, &http.Client{Timeout: cfg.BackendTimeout}, log)

	healthChecks := map[string]handler.HealthChecker{
		"supabase": handler.HealthCheckFunc(sb.Health),
	}

	// 2. プロフィールの保存先（DATABASE_URLがあれば直接接続、なければREST）
	var profiles repository.ProfileRepository = supabase.NewProfileTable(sb)
	if cfg.DirectDatabase() {
		db, err := openDatabase(ctx, cfg.DatabaseURL, cfg.BackendTimeout)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		profiles = repository.NewPostgresProfileRepo(db)
		healthChecks["database"] = handler.HealthCheckFunc(db.PingContext)
		slog.Info("database connection established")
	}

	// 3. トークンの保存先（REDIS_URLがあればRedis、なければインメモリ）
	var tokens repository.TokenRepository = repository.NewMemoryTokenRepo()
	if cfg.RedisURL != "" {
		rdb, err := repository.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, rdb.Close)
		tokens = repository.NewRedisTokenRepo(rdb, repository.DefaultTokenTTL)
		healthChecks["redis"] = redisHealth(rdb)
		slog.Info("redis connection established")
	}

	var verifier *auth.TokenVerifier
	if cfg.SupabaseJWTSecret != "" {
		verifier = auth.NewTokenVerifier(cfg.SupabaseJWTSecret)
	}

	// 4. ドメインサービス
	sanitizer := security.NewTextSanitizer()
	profileService := profile.NewService(
		profiles, supabase.NewBucket(sb, cfg.AvatarBucket), sanitizer,
		collector, log, cfg.AvatarMaxSize,
	)

	app.registry = session.NewRegistry(func(clientID string) (*session.Manager, error) {
		gateway := auth.NewSupabaseGateway(sb, tokens, clientID, verifier, log.With(slog.String("client_id", clientID)))
		return session.NewManager(gateway, profileService, session.Options{
			NoticeDismissAfter: cfg.NoticeDismissAfter,
			Logger:             log.With(slog.String("client_id", clientID)),
			Metrics:            collector,
		}), nil
	}, collector, log)

	cat := catalog.New()

	// 5. バックグラウンドジョブ
	app.importer = explore.NewImporter(
		cfg.ExploreFeedURLs,
		security.NewFetchGuard(cfg.ExploreFetchTimeout, cfg.ExploreFetchMaxSize),
		sanitizer, cat, collector, log, cfg.ExploreFetchInterval,
	)
	app.sweeper = sweeper.NewSweepJob(app.registry, log)
	app.sweeper.IdleTTL = cfg.ClientIdleTTL

	// 6. ルーター
	app.limiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	app.router = handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Metrics:           collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		RateLimiter:       app.limiter,
		HealthChecks:      healthChecks,
		MetricsHandler:    metrics.Handler(reg),
		Sessions:          handler.NewRegistryAdapter(app.registry),
		ProfileService:    profileService,
		MaxAvatarSize:     cfg.AvatarMaxSize,
		Catalog:           cat,
	})

	return app, nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーとバックグラウンドジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer app.close()
	defer app.limiter.Stop()

	go app.importer.Start(ctx)
	go app.sweeper.Start(ctx, cfg.SweepInterval)

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     app.router,
		ReadTimeout: 15 * time.Second,
		// WebSocketの長時間接続があるためWriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// WebSocket接続はShutdownの対象外のため、マネージャーを先に閉じて配信を終わらせる
	app.registry.CloseAll()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if !cfg.DirectDatabase() {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openDatabase はPostgreSQLへの接続を開いて疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string, timeout time.Duration) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, timeout); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// redisHealth はRedisのPINGをHealthCheckerとして返す。
func redisHealth(rdb *redis.Client) handler.HealthChecker {
	return handler.HealthCheckFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
