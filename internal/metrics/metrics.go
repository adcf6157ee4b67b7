// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期パイプラインやハンドラー層から利用する。
type MetricsCollector interface {
	RecordSyncSuccess(provider string)
	RecordSyncFailure(provider string, reason string)
	RecordIngest(provider string, endpoint string)
	RecordMetricsUpserted(provider string, count int)
	RecordHTTPStatus(statusCode int)
	RecordSyncLatency(provider string, duration time.Duration)
	RecordReadinessScore(score float64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess     *prometheus.CounterVec
	syncFail        *prometheus.CounterVec
	ingestTotal     *prometheus.CounterVec
	metricsUpserted *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	syncLatency     *prometheus.HistogramVec
	readinessScore  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalsync_sync_success_total",
			Help: "プロバイダー同期成功の合計数",
		}, []string{"provider"}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalsync_sync_fail_total",
			Help: "プロバイダー同期失敗の合計数",
		}, []string{"provider", "reason"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalsync_ingest_total",
			Help: "受信エンドポイント別の取り込み数",
		}, []string{"provider", "endpoint"}),
		metricsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalsync_metrics_upserted_total",
			Help: "アップサートされた日次メトリクスの合計数",
		}, []string{"provider"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalsync_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitalsync_sync_latency_seconds",
			Help:    "プロバイダー同期のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		readinessScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitalsync_readiness_score",
			Help:    "算出されたレディネススコアの分布",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.ingestTotal,
		c.metricsUpserted,
		c.httpStatus,
		c.syncLatency,
		c.readinessScore,
	)

	return c
}

// RecordSyncSuccess は同期成功を記録する。
func (c *Collector) RecordSyncSuccess(provider string) {
	c.syncSuccess.WithLabelValues(provider).Inc()
}

// RecordSyncFailure は同期失敗を記録する。
func (c *Collector) RecordSyncFailure(provider string, reason string) {
	c.syncFail.WithLabelValues(provider, reason).Inc()
}

// RecordIngest は受信エンドポイントでの取り込みを記録する。
func (c *Collector) RecordIngest(provider string, endpoint string) {
	c.ingestTotal.WithLabelValues(provider, endpoint).Inc()
}

// RecordMetricsUpserted はアップサートされた日次メトリクス数を記録する。
func (c *Collector) RecordMetricsUpserted(provider string, count int) {
	c.metricsUpserted.WithLabelValues(provider).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSyncLatency は同期のレイテンシを記録する。
func (c *Collector) RecordSyncLatency(provider string, duration time.Duration) {
	c.syncLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordReadinessScore は算出されたレディネススコアを記録する。
func (c *Collector) RecordReadinessScore(score float64) {
	c.readinessScore.Observe(score)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
