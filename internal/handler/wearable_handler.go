// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/vitalsync/internal/middleware"
	"github.com/hitoshi/vitalsync/internal/model"
	"github.com/hitoshi/vitalsync/internal/provider"
	"github.com/hitoshi/vitalsync/internal/repository"
	"github.com/hitoshi/vitalsync/internal/syncer"
)

// maxPayloadSize は受信ペイロードの最大サイズ（1MB）。
const maxPayloadSize = 1 << 20

// IngestService はプッシュペイロード取り込みのインターフェース。
// dataDateがnilでない場合、正規化結果の日付をその日付で上書きする。
type IngestService interface {
	Ingest(ctx context.Context, userID string, p model.Provider, endpoint string, payload []byte, dataDate *time.Time) (*syncer.SyncResult, error)
}

// WearableHandler はプロバイダー連携・データ受信のHTTPハンドラー。
type WearableHandler struct {
	registry *provider.Registry
	connRepo repository.ConnectionRepository
	ingest   IngestService
	logger   *slog.Logger
}

// NewWearableHandler はWearableHandlerを生成する。
func NewWearableHandler(
	registry *provider.Registry,
	connRepo repository.ConnectionRepository,
	ingest IngestService,
	logger *slog.Logger,
) *WearableHandler {
	return &WearableHandler{
		registry: registry,
		connRepo: connRepo,
		ingest:   ingest,
		logger:   logger,
	}
}

// providerInfo はプロバイダー一覧のAPIレスポンス要素。
type providerInfo struct {
	Provider         string `json:"provider"`
	Configured       bool   `json:"configured"`
	SupportsOAuth    bool   `json:"supports_oauth"`
	SupportsPullSync bool   `json:"supports_pull_sync"`
}

// ListProviders はサポートプロバイダーとそのケイパビリティを返す。
// GET /wearables/providers
func (h *WearableHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	clients := h.registry.All()
	infos := make([]providerInfo, 0, len(clients))
	for _, c := range clients {
		infos = append(infos, providerInfo{
			Provider:         string(c.Provider()),
			Configured:       c.Configured(),
			SupportsOAuth:    c.SupportsOAuth(),
			SupportsPullSync: c.SupportsPullSync(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": infos})
}

// Auth はOAuth認可URLを発行する。
// stateは呼び出し元が用意する不透明なCSRF相関トークン。省略時はUUIDを採番し、
// レスポンスで返すことで呼び出し元がコールバック時に照合できるようにする。
// GET /wearables/{provider}/auth?state=...
func (h *WearableHandler) Auth(w http.ResponseWriter, r *http.Request) {
	p, ok := parseProviderParam(w, r)
	if !ok {
		return
	}

	client, ok := h.registry.OAuth(p)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotSupportedError(string(p)))
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		state = uuid.New().String()
	}

	authURL, err := client.AuthorizationURL(state, nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"provider":          string(p),
		"authorization_url": authURL,
		"state":             state,
	})
}

// Callback はOAuthコールバックを処理し、接続を作成する。
// stateの照合は認可URLを受け取った呼び出し元の責務であり、本コアでは検証しない。
// GET /wearables/{provider}/callback?code=...&user_id=...
func (h *WearableHandler) Callback(w http.ResponseWriter, r *http.Request) {
	p, ok := parseProviderParam(w, r)
	if !ok {
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeMissingParam(w, "code")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeMissingParam(w, "user_id")
		return
	}

	client, ok := h.registry.OAuth(p)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotSupportedError(string(p)))
		return
	}

	tokens, err := client.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("トークン交換に失敗しました",
			slog.String("provider", string(p)),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	conn := &model.Connection{
		UserID:   userID,
		Provider: p,
		Tokens:   *tokens,
		Status:   model.ConnectionStatusActive,
	}
	if err := h.connRepo.Upsert(r.Context(), conn); err != nil {
		h.logger.Error("接続の保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("provider", string(p)),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	h.logger.Info("プロバイダーを連携しました",
		slog.String("user_id", userID),
		slog.String("provider", string(p)),
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "connected",
		"provider": string(p),
		"user_id":  userID,
	})
}

// Webhook はプロバイダーからのプッシュ通知を処理する。
// Webhookを持つのはOAuth連携プロバイダーのみで、Appleの直送は /apple/ingest を使う。
// ペイロード内のプロバイダー側ユーザーIDから内部ユーザーを解決し、
// 解決できない場合はuser_idクエリパラメータにフォールバックする。
// POST /wearables/{provider}/webhook
func (h *WearableHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	p, ok := parseProviderParam(w, r)
	if !ok {
		return
	}

	client, ok := h.registry.Get(p)
	if !ok || !client.SupportsOAuth() {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotSupportedError(string(p)))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	userID := h.resolveWebhookUser(r.Context(), p, payload)
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUserUnresolvedError())
		return
	}

	result, err := h.ingest.Ingest(r.Context(), userID, p, "webhook", payload, nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "accepted",
		"records": result.Records,
	})
}

// appleIngestRequest は端末からのHealthKitデータ直送ボディ。
// payloadにHealthKitのキー・値ペイロードを包み、data_dateで対象日を上書きできる。
type appleIngestRequest struct {
	UserID   string          `json:"user_id"`
	Payload  json.RawMessage `json:"payload"`
	DataDate string          `json:"data_date"` // YYYY-MM-DD、省略可
}

// AppleIngest はクライアント端末からのHealthKitデータ直送を処理する。
// POST /wearables/apple/ingest  body: {"user_id", "payload", "data_date"?}
func (h *WearableHandler) AppleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	var req appleIngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeInvalidParam(w, "body", "リクエストボディのJSONをパースできません。")
		return
	}
	if req.UserID == "" {
		writeMissingParam(w, "user_id")
		return
	}
	if len(req.Payload) == 0 {
		writeMissingParam(w, "payload")
		return
	}

	var dataDate *time.Time
	if req.DataDate != "" {
		d, err := time.Parse("2006-01-02", req.DataDate)
		if err != nil {
			writeInvalidParam(w, "data_date", "data_dateはYYYY-MM-DD形式で指定してください。")
			return
		}
		dataDate = &d
	}

	result, err := h.ingest.Ingest(r.Context(), req.UserID, model.ProviderApple, "ingest", req.Payload, dataDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "accepted",
		"records": result.Records,
	})
}

// resolveWebhookUser はペイロードのプロバイダー側ユーザーIDから内部ユーザーIDを解決する。
func (h *WearableHandler) resolveWebhookUser(ctx context.Context, p model.Provider, payload []byte) string {
	providerUserID := provider.ExtractProviderUserID(payload)
	if providerUserID == "" {
		return ""
	}

	userID, err := h.connRepo.ResolveUserID(ctx, p, providerUserID)
	if err != nil {
		h.logger.Error("ユーザーIDの逆引きに失敗しました",
			slog.String("provider", string(p)),
			slog.String("provider_user_id", providerUserID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return userID
}

// parseProviderParam はURLパラメータからプロバイダーを解決する。
// 未知のプロバイダーの場合は404を書き込みfalseを返す。
func parseProviderParam(w http.ResponseWriter, r *http.Request) (model.Provider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := model.ParseProvider(name)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotSupportedError(name))
		return "", false
	}
	return p, true
}

// writeMissingParam は必須パラメータ欠落の400レスポンスを書き込む。
func writeMissingParam(w http.ResponseWriter, param string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "MISSING_PARAMETER",
		Message:  "必須パラメータがありません: " + param,
		Category: "validation",
		Action:   param + " を指定してください。",
	})
}

// writeInvalidParam はパラメータ不正の400レスポンスを書き込む。
func writeInvalidParam(w http.ResponseWriter, param, action string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_PARAMETER",
		Message:  "パラメータが不正です: " + param,
		Category: "validation",
		Action:   action,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*model.APIError)
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteErrorResponse(w, statusForAPIError(apiErr), apiErr)
}

// statusForAPIError はエラーコードをHTTPステータスコードに対応付ける。
func statusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeProviderNotSupported, model.ErrCodeConnectionNotFound:
		return http.StatusNotFound
	case model.ErrCodeProviderNotConfigured, model.ErrCodePullNotSupported,
		model.ErrCodeUserUnresolved, model.ErrCodeInvalidBackfillDays:
		return http.StatusBadRequest
	case model.ErrCodeTokenExchangeFailed:
		return http.StatusBadGateway
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
