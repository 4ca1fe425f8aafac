// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// キャッシュ参照結果のラベル値
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// キャッシュ層・サービス層・ワーカー・ミドルウェアから利用する。
type MetricsCollector interface {
	RecordCacheResult(namespace, result string)
	RecordEnrichSuccess()
	RecordEnrichFailure(reason string)
	RecordProviderLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordEssaysSynced(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheResults    *prometheus.CounterVec
	enrichSuccess   prometheus.Counter
	enrichFail      *prometheus.CounterVec
	providerLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	essaysSynced    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "essaybinder_cache_requests_total",
			Help: "キャッシュ参照の結果別件数",
		}, []string{"namespace", "result"}),
		enrichSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "essaybinder_enrich_success_total",
			Help: "ドキュメントメタ情報取得成功の合計数",
		}),
		enrichFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "essaybinder_enrich_fail_total",
			Help: "ドキュメントメタ情報取得失敗の合計数",
		}, []string{"reason"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "essaybinder_provider_latency_seconds",
			Help:    "Google APIによるメタ情報取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "essaybinder_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		essaysSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "essaybinder_essays_synced_total",
			Help: "同期ワーカーが更新したエッセイの合計数",
		}),
	}

	reg.MustRegister(
		c.cacheResults,
		c.enrichSuccess,
		c.enrichFail,
		c.providerLatency,
		c.httpStatus,
		c.essaysSynced,
	)

	return c
}

// RecordCacheResult はキャッシュ参照結果（hit/miss/error）を記録する。
func (c *Collector) RecordCacheResult(namespace, result string) {
	c.cacheResults.WithLabelValues(namespace, result).Inc()
}

// RecordEnrichSuccess はメタ情報取得成功を記録する。
func (c *Collector) RecordEnrichSuccess() {
	c.enrichSuccess.Inc()
}

// RecordEnrichFailure はメタ情報取得失敗を記録する。
func (c *Collector) RecordEnrichFailure(reason string) {
	c.enrichFail.WithLabelValues(reason).Inc()
}

// RecordProviderLatency はGoogle API呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordEssaysSynced は同期されたエッセイ数を記録する。
func (c *Collector) RecordEssaysSynced(count int) {
	c.essaysSynced.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordCacheResult(string, string)    {}
func (Nop) RecordEnrichSuccess()                {}
func (Nop) RecordEnrichFailure(string)          {}
func (Nop) RecordProviderLatency(time.Duration) {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordEssaysSynced(int)              {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
