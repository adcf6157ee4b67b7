package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vitalsync/internal/middleware"
	"github.com/hitoshi/vitalsync/internal/provider"
	"github.com/hitoshi/vitalsync/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	InternalAuth      *middleware.InternalAuth

	// プロバイダー・ストレージ
	Registry *provider.Registry
	ConnRepo repository.ConnectionRepository
	DB       *sql.DB

	// ヘルスチェックの構成要約
	QueueConfigured bool
	SyncInterval    time.Duration

	// サービス
	Ingest IngestService
	Sync   SyncService
	Bulk   BulkSyncService

	Logger *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → RateLimit
//
// 同期ルート（/wearables/*/sync 等）には内部認証ミドルウェアを追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	wearableHandler := NewWearableHandler(deps.Registry, deps.ConnRepo, deps.Ingest, deps.Logger)
	syncHandler := NewSyncHandler(deps.Sync, deps.Bulk, deps.Logger)
	healthHandler := NewHealthHandler(deps.DB, deps.Registry, deps.QueueConfigured, deps.SyncInterval)

	// ヘルスチェック（レート制限の外）
	r.Get("/health", healthHandler.Health)

	r.Route("/wearables", func(r chi.Router) {
		// --- 参照・連携ルート ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/providers", wearableHandler.ListProviders)
			r.Get("/{provider}/auth", wearableHandler.Auth)
			r.Get("/{provider}/callback", wearableHandler.Callback)
		})

		// --- データ受信ルート（取り込み専用レート制限） ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.IngestMiddleware())

			r.Post("/{provider}/webhook", wearableHandler.Webhook)
			r.Post("/apple/ingest", wearableHandler.AppleIngest)
		})

		// --- 内部同期ルート（内部認証必須） ---
		r.Group(func(r chi.Router) {
			r.Use(deps.InternalAuth.Middleware())

			r.Post("/sync-all", syncHandler.SyncAll)
			r.Post("/{provider}/sync", syncHandler.Sync)
			r.Post("/{provider}/backfill", syncHandler.Backfill)
		})
	})

	return r
}
