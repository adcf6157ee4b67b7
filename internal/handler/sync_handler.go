package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/vitalsync/internal/middleware"
	"github.com/hitoshi/vitalsync/internal/model"
	"github.com/hitoshi/vitalsync/internal/syncer"
)

// SyncService は接続単位のプル同期インターフェース。
type SyncService interface {
	SyncProvider(ctx context.Context, userID string, p model.Provider) (*syncer.SyncResult, error)
	BackfillProvider(ctx context.Context, userID string, p model.Provider, days int) (*syncer.SyncResult, error)
}

// BulkSyncService はアクティブ接続全体のバルク同期インターフェース。
type BulkSyncService interface {
	SyncAll(ctx context.Context, p *model.Provider) (*syncer.SyncAllReport, error)
}

// SyncHandler は同期・バックフィルのHTTPハンドラー。
// 内部認証ミドルウェアの背後に配置される。
type SyncHandler struct {
	sync   SyncService
	bulk   BulkSyncService
	logger *slog.Logger
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(sync SyncService, bulk BulkSyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		bulk:   bulk,
		logger: logger,
	}
}

// Sync は1接続分の直近データを同期する。
// POST /wearables/{provider}/sync?user_id=...
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	p, ok := parseProviderParam(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeMissingParam(w, "user_id")
		return
	}

	result, err := h.sync.SyncProvider(r.Context(), userID, p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Backfill は1接続分の過去データを指定日数分同期する。
// POST /wearables/{provider}/backfill?user_id=...&days=30
func (h *SyncHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	p, ok := parseProviderParam(w, r)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeMissingParam(w, "user_id")
		return
	}

	daysStr := r.URL.Query().Get("days")
	if daysStr == "" {
		writeMissingParam(w, "days")
		return
	}
	days, err := strconv.Atoi(daysStr)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBackfillDaysError(0))
		return
	}

	result, err := h.sync.BackfillProvider(r.Context(), userID, p, days)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// SyncAll はアクティブ接続全体のバルク同期を1サイクル実行する。
// providerクエリパラメータで対象プロバイダーを絞り込める。
// POST /wearables/sync-all?provider=oura
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	var p *model.Provider
	if name := r.URL.Query().Get("provider"); name != "" {
		parsed, ok := model.ParseProvider(name)
		if !ok {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotSupportedError(name))
			return
		}
		p = &parsed
	}

	report, err := h.bulk.SyncAll(r.Context(), p)
	if err != nil {
		h.logger.Error("バルク同期に失敗しました",
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
