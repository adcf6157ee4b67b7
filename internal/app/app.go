// Package app はアプリケーションの起動・ワイヤリング・シャットダウンを担う。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/vitalsync/internal/config"
	"github.com/hitoshi/vitalsync/internal/database"
	"github.com/hitoshi/vitalsync/internal/handler"
	"github.com/hitoshi/vitalsync/internal/logger"
	"github.com/hitoshi/vitalsync/internal/metrics"
	"github.com/hitoshi/vitalsync/internal/middleware"
	"github.com/hitoshi/vitalsync/internal/provider"
	"github.com/hitoshi/vitalsync/internal/repository"
	"github.com/hitoshi/vitalsync/internal/security"
	"github.com/hitoshi/vitalsync/internal/syncer"
	"github.com/hitoshi/vitalsync/internal/taskqueue"
)

// maxResponseSize はプロバイダーAPIレスポンスの最大サイズ（5MB）。
const maxResponseSize = 5 * 1024 * 1024

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildRegistry はSSRF防止付きHTTPクライアントを注入したプロバイダーレジストリを構築する。
// 環境変数で上書きされたエンドポイントURLは起動時に検証し、危険なURLは警告する。
func buildRegistry(cfg *config.Config) *provider.Registry {
	ssrfGuard := security.NewSSRFGuard()
	client := ssrfGuard.NewSafeClient(cfg.FetchTimeout, maxResponseSize)

	validateOverrides := func(name string, creds config.ProviderCredentials) {
		for _, u := range []string{creds.AuthURL, creds.TokenURL, creds.APIBase} {
			if u == "" {
				continue
			}
			if err := ssrfGuard.ValidateURL(u); err != nil {
				slog.Warn("プロバイダーエンドポイントの上書きURLが検証に失敗しました",
					slog.String("provider", name),
					slog.String("url", u),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	validateOverrides("garmin", cfg.Garmin)
	validateOverrides("oura", cfg.Oura)
	validateOverrides("whoop", cfg.Whoop)

	toOAuthConfig := func(creds config.ProviderCredentials) provider.OAuthConfig {
		return provider.OAuthConfig{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURI:  creds.RedirectURI,
			AuthURL:      creds.AuthURL,
			TokenURL:     creds.TokenURL,
			APIBase:      creds.APIBase,
			HTTPClient:   client,
		}
	}

	return provider.NewRegistry(
		provider.NewGarminClient(toOAuthConfig(cfg.Garmin)),
		provider.NewOuraClient(toOAuthConfig(cfg.Oura)),
		provider.NewWhoopClient(toOAuthConfig(cfg.Whoop)),
		provider.NewAppleHealthBridge(),
	)
}

// rateLimiterConfig は設定のreq/min値をレート制限設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	c := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		c.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		c.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitIngest > 0 {
		c.IngestRate = rate.Limit(float64(cfg.RateLimitIngest) / 60.0)
		c.IngestBurst = cfg.RateLimitIngest
	}
	return c
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	connRepo := repository.NewPostgresConnectionRepo(db)
	metricsRepo := repository.NewPostgresMetricsRepo(db)
	rawRepo := repository.NewPostgresRawPayloadRepo(db)

	// 3. プロバイダーレジストリとメトリクス
	registry := buildRegistry(cfg)

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 4. タスクキュー（構成されている場合のみ）
	var queue *taskqueue.Queue
	if cfg.QueueConfigured() {
		queue = taskqueue.New(taskqueue.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			QueueName: cfg.SyncQueueName,
		})
		defer queue.Close()

		if err := queue.Ping(context.Background()); err != nil {
			return fmt.Errorf("failed to connect to task queue: %w", err)
		}
		slog.Info("task queue connected", slog.String("queue", cfg.SyncQueueName))
	} else {
		slog.Info("task queue not configured, bulk sync runs inline")
	}

	// 5. 同期パイプライン
	sync := syncer.NewSyncer(connRepo, metricsRepo, rawRepo, registry, collector, slog.Default())

	var enqueuer syncer.TaskEnqueuer
	if queue != nil {
		enqueuer = queue
	}
	scheduler := syncer.NewScheduler(
		connRepo, sync, enqueuer, slog.Default(),
		cfg.SyncMinInterval, cfg.SyncMaxConcurrent,
	)

	// 6. ルーターの構築
	if !cfg.InternalAuthConfigured() {
		slog.Warn("internal auth not configured, sync endpoints will reject all requests")
	}

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterConfig(cfg)),
		InternalAuth: middleware.NewInternalAuth(middleware.InternalAuthConfig{
			APIKey:   cfg.SyncAPIKey,
			Audience: cfg.SyncAuthAudience,
		}),

		Registry: registry,
		ConnRepo: connRepo,
		DB:       db,

		QueueConfigured: cfg.QueueConfigured(),
		SyncInterval:    cfg.SyncMinInterval,

		Ingest: sync,
		Sync:   sync,
		Bulk:   scheduler,

		Logger: slog.Default(),
	}

	router := handler.NewRouter(deps)

	// /metrics はAPIルーターのミドルウェアチェーンの外で公開する
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(promRegistry))
	mux.Handle("/", router)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 定期同期スケジューラと、キュー構成時はタスクコンシューマーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	connRepo := repository.NewPostgresConnectionRepo(db)
	metricsRepo := repository.NewPostgresMetricsRepo(db)
	rawRepo := repository.NewPostgresRawPayloadRepo(db)

	// 3. プロバイダーレジストリとメトリクス
	registry := buildRegistry(cfg)

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 4. タスクキュー
	var queue *taskqueue.Queue
	if cfg.QueueConfigured() {
		queue = taskqueue.New(taskqueue.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			QueueName: cfg.SyncQueueName,
		})
		defer queue.Close()

		if err := queue.Ping(context.Background()); err != nil {
			return fmt.Errorf("failed to connect to task queue: %w", err)
		}
		slog.Info("task queue connected (worker)", slog.String("queue", cfg.SyncQueueName))
	}

	// 5. 同期パイプライン
	sync := syncer.NewSyncer(connRepo, metricsRepo, rawRepo, registry, collector, slog.Default())

	var enqueuer syncer.TaskEnqueuer
	if queue != nil {
		enqueuer = queue
	}
	scheduler := syncer.NewScheduler(
		connRepo, sync, enqueuer, slog.Default(),
		cfg.SyncMinInterval, cfg.SyncMaxConcurrent,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncMinInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// キュー構成時はコンシューマーをバックグラウンドで起動
	if queue != nil {
		worker := syncer.NewQueueWorker(queue, sync, slog.Default())
		go worker.Run(ctx)
	}

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SyncMinInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
