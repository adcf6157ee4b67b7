// Package syncer はプロバイダーAPIからのプル同期パイプラインを提供する。
// トークンリフレッシュ、データ取得、正規化、レディネス算出、永続化を
// 接続単位で逐次実行する。
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/vitalsync/internal/metrics"
	"github.com/hitoshi/vitalsync/internal/model"
	"github.com/hitoshi/vitalsync/internal/provider"
	"github.com/hitoshi/vitalsync/internal/readiness"
	"github.com/hitoshi/vitalsync/internal/repository"
)

const (
	// refreshMargin はトークン失効前にリフレッシュを開始する余裕時間。
	refreshMargin = 5 * time.Minute

	// MaxBackfillDays はバックフィルで指定できる最大日数。
	MaxBackfillDays = 365
)

// SyncResult は1接続分の同期結果を表す。
type SyncResult struct {
	Provider model.Provider `json:"provider"`
	UserID   string         `json:"user_id"`
	Records  int            `json:"records"`
	Days     int            `json:"days"`
}

// Syncer は1接続分の同期パイプラインを実行する。
type Syncer struct {
	connRepo    repository.ConnectionRepository
	metricsRepo repository.MetricsRepository
	rawRepo     repository.RawPayloadRepository
	registry    *provider.Registry
	collector   metrics.MetricsCollector
	logger      *slog.Logger
}

// NewSyncer はSyncerを生成する。collectorはnil許容。
func NewSyncer(
	connRepo repository.ConnectionRepository,
	metricsRepo repository.MetricsRepository,
	rawRepo repository.RawPayloadRepository,
	registry *provider.Registry,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Syncer {
	return &Syncer{
		connRepo:    connRepo,
		metricsRepo: metricsRepo,
		rawRepo:     rawRepo,
		registry:    registry,
		collector:   collector,
		logger:      logger,
	}
}

// SyncProvider は直近1日分のデータを同期する。
func (s *Syncer) SyncProvider(ctx context.Context, userID string, p model.Provider) (*SyncResult, error) {
	return s.sync(ctx, userID, p, 1)
}

// BackfillProvider は指定日数分の過去データを同期する。
// daysは1からMaxBackfillDaysの範囲で指定する。
func (s *Syncer) BackfillProvider(ctx context.Context, userID string, p model.Provider, days int) (*SyncResult, error) {
	if days < 1 || days > MaxBackfillDays {
		return nil, model.NewInvalidBackfillDaysError(days)
	}
	return s.sync(ctx, userID, p, days)
}

// sync は同期パイプラインの本体。
// 接続検証 → トークンリフレッシュ → データ取得 → 生ペイロード保存 →
// レディネス算出 → メトリクスUPSERT → last_sync_at更新、の順に実行する。
func (s *Syncer) sync(ctx context.Context, userID string, p model.Provider, days int) (*SyncResult, error) {
	start := time.Now()

	client, ok := s.registry.Pull(p)
	if !ok {
		s.recordFailure(p, "pull_not_supported")
		return nil, model.NewPullNotSupportedError(p)
	}

	conn, err := s.connRepo.Find(ctx, userID, p)
	if err != nil {
		s.recordFailure(p, "store_error")
		return nil, err
	}
	if conn == nil || conn.Status != model.ConnectionStatusActive {
		s.recordFailure(p, "connection_not_found")
		return nil, model.NewConnectionNotFoundError(userID, p)
	}

	accessToken, err := s.ensureFreshToken(ctx, conn, client)
	if err != nil {
		s.recordFailure(p, "token_refresh_failed")
		return nil, err
	}

	end := time.Now().UTC()
	windowStart := end.AddDate(0, 0, -days)

	raw, records, err := client.Pull(ctx, accessToken, userID, windowStart, end)
	if err != nil {
		s.recordFailure(p, "fetch_failed")
		return nil, fmt.Errorf("%s からのデータ取得に失敗しました: %w", p, err)
	}

	// 生ペイロードは監査用の追記。保存失敗は同期自体を失敗させない。
	rawID := s.storeRawPayload(ctx, userID, p, "pull", raw, nil)

	stored := s.storeMetrics(ctx, p, records, rawID)

	now := time.Now()
	if err := s.connRepo.TouchSync(ctx, userID, p, now); err != nil {
		s.logger.Error("last_sync_atの更新に失敗しました",
			slog.String("user_id", userID),
			slog.String("provider", string(p)),
			slog.String("error", err.Error()),
		)
	}

	if s.collector != nil {
		s.collector.RecordSyncSuccess(string(p))
		s.collector.RecordSyncLatency(string(p), time.Since(start))
	}

	s.logger.Info("同期が完了しました",
		slog.String("user_id", userID),
		slog.String("provider", string(p)),
		slog.Int("days", days),
		slog.Int("records", stored),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return &SyncResult{
		Provider: p,
		UserID:   userID,
		Records:  stored,
		Days:     days,
	}, nil
}

// ensureFreshToken は失効が近いトークンをリフレッシュし、新しいトークンバンドルを
// 永続化してからアクセストークンを返す。保存はデータ取得より先に行う。
// リフレッシュ済みトークンが失われると接続全体が使用不能になるため。
func (s *Syncer) ensureFreshToken(ctx context.Context, conn *model.Connection, client provider.PullClient) (string, error) {
	expiresAt := conn.Tokens.ExpiresAt
	if expiresAt == nil || time.Until(*expiresAt) > refreshMargin {
		return conn.Tokens.AccessToken, nil
	}

	if conn.Tokens.RefreshToken == "" {
		return "", model.NewTokenExchangeFailedError(conn.Provider, "リフレッシュトークンがありません")
	}

	oauthClient, ok := s.registry.OAuth(conn.Provider)
	if !ok {
		return "", model.NewTokenExchangeFailedError(conn.Provider, "OAuth非対応プロバイダーです")
	}

	tokens, err := oauthClient.RefreshAccessToken(ctx, conn.Tokens.RefreshToken)
	if err != nil {
		return "", model.NewTokenExchangeFailedError(conn.Provider, err.Error())
	}

	// リフレッシュトークンがローテーションされないプロバイダーでは旧値を引き継ぐ
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = conn.Tokens.RefreshToken
	}
	if tokens.ProviderUserID == "" {
		tokens.ProviderUserID = conn.Tokens.ProviderUserID
	}
	if len(tokens.Scopes) == 0 {
		tokens.Scopes = conn.Tokens.Scopes
	}

	conn.Tokens = *tokens
	if err := s.connRepo.Upsert(ctx, conn); err != nil {
		return "", fmt.Errorf("リフレッシュ済みトークンの保存に失敗しました: %w", err)
	}

	s.logger.Info("トークンをリフレッシュしました",
		slog.String("user_id", conn.UserID),
		slog.String("provider", string(conn.Provider)),
	)

	return tokens.AccessToken, nil
}

// storeRawPayload は生ペイロードを保存し、採番されたIDを返す。
// 保存失敗はログのみに記録し、空IDを返す。
func (s *Syncer) storeRawPayload(ctx context.Context, userID string, p model.Provider, endpoint string, payload []byte, dataDate *time.Time) string {
	if len(payload) == 0 {
		return ""
	}
	raw := &model.RawPayload{
		UserID:   userID,
		Provider: p,
		Endpoint: endpoint,
		Payload:  payload,
		DataDate: dataDate,
		SyncedAt: time.Now(),
	}
	if err := s.rawRepo.Insert(ctx, raw); err != nil {
		s.logger.Error("生ペイロードの保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("provider", string(p)),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return raw.ID
}

// storeMetrics はレディネスを算出して各レコードをUPSERTし、保存件数を返す。
// 個々のレコードの保存失敗はログに記録してスキップする（保存失敗＝データなし扱い）。
func (s *Syncer) storeMetrics(ctx context.Context, p model.Provider, records []*model.WearableMetrics, rawID string) int {
	stored := 0
	for _, m := range records {
		m.RawDataID = rawID
		m.ReadinessScore = readiness.Calculate(m, nil)

		if err := s.metricsRepo.Upsert(ctx, m); err != nil {
			s.logger.Error("メトリクスのUPSERTに失敗しました",
				slog.String("user_id", m.UserID),
				slog.String("provider", string(p)),
				slog.String("data_date", m.DataDate.Format("2006-01-02")),
				slog.String("error", err.Error()),
			)
			continue
		}
		stored++

		if s.collector != nil && m.ReadinessScore != nil {
			s.collector.RecordReadinessScore(*m.ReadinessScore)
		}
	}

	if s.collector != nil {
		s.collector.RecordMetricsUpserted(string(p), stored)
	}
	return stored
}

// recordFailure は同期失敗メトリクスを記録する。
func (s *Syncer) recordFailure(p model.Provider, reason string) {
	if s.collector != nil {
		s.collector.RecordSyncFailure(string(p), reason)
	}
}
