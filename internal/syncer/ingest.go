package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
)

// Ingest はプッシュ経由（Webhook・クライアント直送）のペイロードを取り込む。
// プル同期と同じ正規化・レディネス算出・永続化パスを通す。
// dataDateがnilでない場合、正規化結果の日付をその日付（UTC日付に正規化）で上書きする。
// 正規化で1件も得られなかった場合でも生ペイロードは監査用に残る。
func (s *Syncer) Ingest(ctx context.Context, userID string, p model.Provider, endpoint string, payload []byte, dataDate *time.Time) (*SyncResult, error) {
	client, ok := s.registry.Get(p)
	if !ok {
		return nil, model.NewProviderNotSupportedError(string(p))
	}

	records := client.Normalize(payload, userID)

	if dataDate != nil {
		d := model.DateOf(*dataDate)
		for _, m := range records {
			m.DataDate = d
		}
	}

	var rawDate *time.Time
	if len(records) > 0 {
		d := records[0].DataDate
		rawDate = &d
	}

	rawID := s.storeRawPayload(ctx, userID, p, endpoint, payload, rawDate)

	stored := s.storeMetrics(ctx, p, records, rawID)

	if s.collector != nil {
		s.collector.RecordIngest(string(p), endpoint)
	}

	s.logger.Info("ペイロードを取り込みました",
		slog.String("user_id", userID),
		slog.String("provider", string(p)),
		slog.String("endpoint", endpoint),
		slog.Int("records", stored),
	)

	return &SyncResult{
		Provider: p,
		UserID:   userID,
		Records:  stored,
	}, nil
}
