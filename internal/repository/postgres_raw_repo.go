package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/vitalsync/internal/model"
)

// PostgresRawPayloadRepo はPostgreSQLを使用した生ペイロードリポジトリ。
type PostgresRawPayloadRepo struct {
	db *sql.DB
}

// NewPostgresRawPayloadRepo はPostgresRawPayloadRepoを生成する。
func NewPostgresRawPayloadRepo(db *sql.DB) *PostgresRawPayloadRepo {
	return &PostgresRawPayloadRepo{db: db}
}

// Insert は生ペイロードを追記する。IDが未設定の場合はUUIDを採番し、
// rawレコード側に書き戻す（メトリクス側のraw_data_id参照に使う）。
func (r *PostgresRawPayloadRepo) Insert(ctx context.Context, raw *model.RawPayload) error {
	if raw.ID == "" {
		raw.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wearable_raw (id, user_id, provider, endpoint, payload, data_date, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		raw.ID, raw.UserID, raw.Provider, raw.Endpoint, raw.Payload,
		nullTime(raw.DataDate), raw.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("生ペイロードの保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RawPayloadRepository = (*PostgresRawPayloadRepo)(nil)
