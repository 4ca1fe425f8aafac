// Package app はプロセスの起動、依存関係のワイヤリング、サブコマンドの実行を行う。
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

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/essaybinder/internal/auth"
	"github.com/hitoshi/essaybinder/internal/cache"
	"github.com/hitoshi/essaybinder/internal/config"
	"github.com/hitoshi/essaybinder/internal/credential"
	"github.com/hitoshi/essaybinder/internal/database"
	"github.com/hitoshi/essaybinder/internal/docs"
	"github.com/hitoshi/essaybinder/internal/essay"
	"github.com/hitoshi/essaybinder/internal/handler"
	"github.com/hitoshi/essaybinder/internal/logger"
	"github.com/hitoshi/essaybinder/internal/metrics"
	"github.com/hitoshi/essaybinder/internal/middleware"
	"github.com/hitoshi/essaybinder/internal/position"
	"github.com/hitoshi/essaybinder/internal/repository"
	"github.com/hitoshi/essaybinder/internal/security"
	"github.com/hitoshi/essaybinder/internal/session"
	"github.com/hitoshi/essaybinder/internal/worker/cleanup"
	"github.com/hitoshi/essaybinder/internal/worker/resync"
)

const (
	// defaultWorkerSyncInterval はworkerモードでSYNC_INTERVAL未設定時の再同期間隔。
	defaultWorkerSyncInterval = time.Hour
	cleanupInterval           = 24 * time.Hour
	shutdownTimeout           = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
		slog.String("store_backend", cfg.StoreBackend),
		slog.Bool("cache_enabled", cfg.RedisURL != ""),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores は選択されたバックエンドのリポジトリ一式。
type stores struct {
	essays      repository.EssayRepository
	credentials repository.CredentialRepository
	positions   repository.PositionRepository
	close       func() error
}

// openStores はSTORE_BACKENDに応じてFirestoreまたはPostgreSQLに接続する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		return postgresStores(db), nil
	default:
		client, err := repository.OpenFirestore(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open firestore: %w", err)
		}
		slog.Info("firestore client established", slog.String("project_id", cfg.FirebaseProjectID))
		return firestoreStores(client), nil
	}
}

func postgresStores(db *sql.DB) *stores {
	return &stores{
		essays:      repository.NewPostgresEssayRepo(db),
		credentials: repository.NewPostgresCredentialRepo(db),
		positions:   repository.NewPostgresPositionRepo(db),
		close:       db.Close,
	}
}

func firestoreStores(client *firestore.Client) *stores {
	return &stores{
		essays:      repository.NewFirestoreEssayRepo(client),
		credentials: repository.NewFirestoreCredentialRepo(client),
		positions:   repository.NewFirestorePositionRepo(client),
		close:       client.Close,
	}
}

// openCache はREDIS_URLが設定されていればRedisキャッシュを返す。
// 接続に失敗した場合はキャッシュなしで起動を続ける。
func openCache(ctx context.Context, cfg *config.Config, m metrics.MetricsCollector) (*cache.Cache, func()) {
	if cfg.RedisURL == "" {
		slog.Info("cache disabled: REDIS_URL is not set")
		return cache.New(nil, m), func() {}
	}

	client, err := cache.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("cache disabled: redis is unreachable", slog.String("error", err.Error()))
		return cache.New(nil, m), func() {}
	}
	slog.Info("redis cache connected")
	return cache.New(cache.NewRedisStore(client), m), closeRedis(client)
}

func closeRedis(client *redis.Client) func() {
	return func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
}

// services はドメインサービス一式。
type services struct {
	catalog     *essay.CachedCatalog
	auth        *auth.Service
	credentials *credential.Store
	positions   *position.Service
	sessions    *session.Codec
	providers   *docs.GoogleFactory
}

func buildServices(cfg *config.Config, st *stores, c *cache.Cache, m metrics.MetricsCollector) (*services, error) {
	cipher, err := credential.NewCipher(cfg.RefreshTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}
	credStore := credential.NewStore(st.credentials, cipher)
	codec := session.NewCodec(cfg.SessionSecret)

	authService := auth.NewService(
		auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		}),
		auth.NewGoogleIDTokenVerifier(cfg.GoogleClientID),
		credStore,
		codec,
		auth.ServiceConfig{SessionTTL: cfg.SessionTTL},
	)

	essayService := essay.NewService(st.essays, c, security.NewTextSanitizer(), m, essay.Config{
		MaxConcurrent: cfg.EnrichMaxConcurrent,
	})

	return &services{
		catalog:     essay.NewCachedCatalog(essayService, c),
		auth:        authService,
		credentials: credStore,
		positions:   position.NewService(st.positions),
		sessions:    codec,
		providers:   docs.NewGoogleFactory(cfg.GoogleAPITimeout),
	}, nil
}

func newResyncScheduler(cfg *config.Config, svc *services, m metrics.MetricsCollector) *resync.Scheduler {
	return resync.NewScheduler(svc.credentials, svc.auth, svc.providers, svc.catalog, m, slog.Default(), cfg.SyncMaxConcurrent)
}

// runServe はAPIサーバーモードで起動する。
// ストアに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. ストア接続
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	// 2. メトリクスとキャッシュ
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	c, closeCache := openCache(ctx, cfg, collector)
	defer closeCache()

	// 3. ドメインサービス
	svc, err := buildServices(cfg, st, c, collector)
	if err != nil {
		return err
	}

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAdd))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionVerifier:   svc.sessions,
		Cookies:           middleware.CookieConfig{Secure: cfg.CookieSecure},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(registry),

		AuthService: svc.auth,
		AuthConfig: handler.AuthHandlerConfig{
			SessionTTL:     cfg.SessionTTL,
			AccessTokenTTL: cfg.AccessTokenTTL,
		},

		Catalog:   svc.catalog,
		Providers: svc.providers,

		PositionService: svc.positions,
	})

	// 5. SYNC_INTERVALが設定されていればプロセス内で再同期する
	if cfg.SyncInterval > 0 {
		go newResyncScheduler(cfg, svc, collector).Start(ctx, cfg.SyncInterval)
	}

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 再同期スケジューラと認証情報クリーンアップジョブを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	collector := metrics.NewCollector(prometheus.NewRegistry())
	c, closeCache := openCache(ctx, cfg, collector)
	defer closeCache()

	svc, err := buildServices(cfg, st, c, collector)
	if err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = defaultWorkerSyncInterval
	}
	slog.Info("worker starting",
		slog.Duration("sync_interval", interval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
		slog.Int("credential_retention_days", cfg.CredentialRetentionDays),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	cleanupJob := cleanup.NewCleanupJob(svc.credentials, slog.Default(), cfg.CredentialRetentionDays)
	go cleanupJob.Start(ctx, cleanupInterval)

	// 再同期スケジューラをメインgoroutineで実行（ブロッキング）
	newResyncScheduler(cfg, svc, collector).Start(ctx, interval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// Firestoreはスキーマを持たないため何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreBackend != config.StorePostgres {
		slog.Info("no migrations to run", slog.String("store_backend", cfg.StoreBackend))
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
