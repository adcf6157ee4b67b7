package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/vitalsync/internal/model"
)

// PostgresMetricsRepo はPostgreSQLを使用したメトリクスリポジトリ。
type PostgresMetricsRepo struct {
	db *sql.DB
}

// NewPostgresMetricsRepo はPostgresMetricsRepoを生成する。
func NewPostgresMetricsRepo(db *sql.DB) *PostgresMetricsRepo {
	return &PostgresMetricsRepo{db: db}
}

// Upsert は（user_id, provider, data_date）をキーにメトリクスをUPSERTする。
// 同一キーへの後続の書き込みはレコード全体の上書き。
func (r *PostgresMetricsRepo) Upsert(ctx context.Context, m *model.WearableMetrics) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wearable_metrics
		     (user_id, provider, data_date,
		      hrv_rmssd, hrv_sdnn, resting_hr,
		      sleep_score, sleep_hours,
		      deep_sleep_minutes, rem_sleep_minutes, light_sleep_minutes, awake_minutes,
		      recovery_score, readiness_score, stress_level, body_battery, strain,
		      steps, active_calories, total_calories, active_minutes,
		      raw_data_id, synced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, now())
		 ON CONFLICT (user_id, provider, data_date) DO UPDATE SET
		     hrv_rmssd = EXCLUDED.hrv_rmssd,
		     hrv_sdnn = EXCLUDED.hrv_sdnn,
		     resting_hr = EXCLUDED.resting_hr,
		     sleep_score = EXCLUDED.sleep_score,
		     sleep_hours = EXCLUDED.sleep_hours,
		     deep_sleep_minutes = EXCLUDED.deep_sleep_minutes,
		     rem_sleep_minutes = EXCLUDED.rem_sleep_minutes,
		     light_sleep_minutes = EXCLUDED.light_sleep_minutes,
		     awake_minutes = EXCLUDED.awake_minutes,
		     recovery_score = EXCLUDED.recovery_score,
		     readiness_score = EXCLUDED.readiness_score,
		     stress_level = EXCLUDED.stress_level,
		     body_battery = EXCLUDED.body_battery,
		     strain = EXCLUDED.strain,
		     steps = EXCLUDED.steps,
		     active_calories = EXCLUDED.active_calories,
		     total_calories = EXCLUDED.total_calories,
		     active_minutes = EXCLUDED.active_minutes,
		     raw_data_id = EXCLUDED.raw_data_id,
		     synced_at = now()`,
		m.UserID, m.Provider, m.DataDate,
		m.HRVRMSSD, m.HRVSDNN, m.RestingHR,
		m.SleepScore, m.SleepHours,
		m.DeepSleepMinutes, m.RemSleepMinutes, m.LightSleepMinutes, m.AwakeMinutes,
		m.RecoveryScore, m.ReadinessScore, m.StressLevel, m.BodyBattery, m.Strain,
		m.Steps, m.ActiveCalories, m.TotalCalories, m.ActiveMinutes,
		nullString(m.RawDataID),
	)
	if err != nil {
		return fmt.Errorf("メトリクスのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MetricsRepository = (*PostgresMetricsRepo)(nil)
