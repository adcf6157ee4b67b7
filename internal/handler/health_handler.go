package handler

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/hitoshi/vitalsync/internal/provider"
)

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db              *sql.DB
	registry        *provider.Registry
	queueConfigured bool
	syncInterval    time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。dbはnil許容（テスト用）。
func NewHealthHandler(db *sql.DB, registry *provider.Registry, queueConfigured bool, syncInterval time.Duration) *HealthHandler {
	return &HealthHandler{
		db:              db,
		registry:        registry,
		queueConfigured: queueConfigured,
		syncInterval:    syncInterval,
	}
}

// Health はサービスの稼働状態と構成済みプロバイダーの要約を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "skipped"

	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			status = "degraded"
			dbStatus = "unreachable"
		} else {
			dbStatus = "ok"
		}
	}

	configured := []string{}
	for _, c := range h.registry.All() {
		if c.Configured() {
			configured = append(configured, string(c.Provider()))
		}
	}

	statusCode := http.StatusOK
	if status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"status":                status,
		"database":              dbStatus,
		"configured_providers":  configured,
		"queue_configured":      h.queueConfigured,
		"sync_interval_minutes": int(h.syncInterval.Minutes()),
	})
}
