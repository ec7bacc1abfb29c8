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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordPublishSuccess()
	RecordPublishFailure(reason string)
	RecordMediaUploadFailure()
	RecordWPStatus(statusCode int)
	RecordPublishLatency(duration time.Duration)
	RecordBatchSize(count int)
	RecordStaleClaimsReleased(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	publishSuccess  prometheus.Counter
	publishFail     *prometheus.CounterVec
	mediaUploadFail prometheus.Counter
	wpStatus        *prometheus.CounterVec
	publishLatency  prometheus.Histogram
	batchSize       prometheus.Histogram
	staleClaims     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		publishSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seopilot_publish_success_total",
			Help: "記事公開成功の合計数",
		}),
		publishFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seopilot_publish_fail_total",
			Help: "記事公開失敗の合計数（原因別）",
		}, []string{"reason"}),
		mediaUploadFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seopilot_media_upload_fail_total",
			Help: "アイキャッチ画像アップロード失敗の合計数",
		}),
		wpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seopilot_wp_http_status_total",
			Help: "WordPress REST APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seopilot_publish_latency_seconds",
			Help:    "記事1件の公開処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seopilot_publish_batch_size",
			Help:    "1回の実行でクレームされた記事数",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		staleClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seopilot_stale_claims_released_total",
			Help: "回収されたスタッククレームの合計数",
		}),
	}

	reg.MustRegister(
		c.publishSuccess,
		c.publishFail,
		c.mediaUploadFail,
		c.wpStatus,
		c.publishLatency,
		c.batchSize,
		c.staleClaims,
	)

	return c
}

// RecordPublishSuccess は公開成功を記録する。
func (c *Collector) RecordPublishSuccess() {
	c.publishSuccess.Inc()
}

// RecordPublishFailure は公開失敗を原因カテゴリ付きで記録する。
func (c *Collector) RecordPublishFailure(reason string) {
	c.publishFail.WithLabelValues(reason).Inc()
}

// RecordMediaUploadFailure はアイキャッチ画像アップロード失敗を記録する。
func (c *Collector) RecordMediaUploadFailure() {
	c.mediaUploadFail.Inc()
}

// RecordWPStatus はWordPress REST APIのHTTPステータスコードを記録する。
func (c *Collector) RecordWPStatus(statusCode int) {
	c.wpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPublishLatency は記事1件の公開処理のレイテンシを記録する。
func (c *Collector) RecordPublishLatency(duration time.Duration) {
	c.publishLatency.Observe(duration.Seconds())
}

// RecordBatchSize はクレームされたバッチサイズを記録する。
func (c *Collector) RecordBatchSize(count int) {
	c.batchSize.Observe(float64(count))
}

// RecordStaleClaimsReleased は回収されたスタッククレーム数を記録する。
func (c *Collector) RecordStaleClaimsReleased(count int) {
	c.staleClaims.Add(float64(count))
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
