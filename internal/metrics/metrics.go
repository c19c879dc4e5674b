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
// ハンドラやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, statusCode int)
	RecordProviderCall(provider, operation string, success bool)
	RecordProviderLatency(provider string, duration time.Duration)
	RecordTokenRefresh(provider string, success bool)
	RecordAccountLinked(provider string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	tokenRefreshes  *prometheus.CounterVec
	accountsLinked  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workhub_http_requests_total",
			Help: "HTTPリクエストの合計数",
		}, []string{"method", "path", "status_code"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workhub_provider_calls_total",
			Help: "プロバイダーAPI呼び出しの合計数",
		}, []string{"provider", "operation", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workhub_provider_latency_seconds",
			Help:    "プロバイダーAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workhub_token_refreshes_total",
			Help: "アクセストークンリフレッシュの合計数",
		}, []string{"provider", "result"}),
		accountsLinked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workhub_accounts_linked_total",
			Help: "プロバイダー連携完了の合計数",
		}, []string{"provider"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.providerCalls,
		c.providerLatency,
		c.tokenRefreshes,
		c.accountsLinked,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの完了を記録する。
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
}

// RecordProviderCall はプロバイダーAPI呼び出しの結果を記録する。
func (c *Collector) RecordProviderCall(provider, operation string, success bool) {
	c.providerCalls.WithLabelValues(provider, operation, resultLabel(success)).Inc()
}

// RecordProviderLatency はプロバイダーAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTokenRefresh はトークンリフレッシュの結果を記録する。
func (c *Collector) RecordTokenRefresh(provider string, success bool) {
	c.tokenRefreshes.WithLabelValues(provider, resultLabel(success)).Inc()
}

// RecordAccountLinked はプロバイダー連携の完了を記録する。
func (c *Collector) RecordAccountLinked(provider string) {
	c.accountsLinked.WithLabelValues(provider).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
