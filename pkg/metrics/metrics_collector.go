package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
// 所有方法对 nil 接收者安全，未初始化时不记录
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 订单指标
	transitionsTotal   *prometheus.CounterVec
	refundAttempts     *prometheus.CounterVec
	tradeNotifications *prometheus.CounterVec
	sweepDuration      *prometheus.HistogramVec
	snapshotCache      *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器并注册到 reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	return &MetricsCollector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_status_transitions_total",
				Help: "Order status transitions by event and result",
			},
			[]string{"event", "result"},
		),

		refundAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_refund_attempts_total",
				Help: "Refund attempts against the payment gateway by result",
			},
			[]string{"result"},
		),

		tradeNotifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_trade_notifications_total",
				Help: "Trade status notification records by outcome",
			},
			[]string{"source", "result"},
		),

		sweepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orders_sweep_duration_seconds",
				Help:    "Duration of scheduled order sweeps",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"job"},
		),

		snapshotCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_snapshot_cache_total",
				Help: "Order snapshot cache lookups",
			},
			[]string{"result"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, getStatusCategory(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTransition 记录状态流转，result: ok / stale / invalid / error
func (m *MetricsCollector) RecordTransition(event, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(event, result).Inc()
}

// RecordRefundAttempt result: success / failed / pending / error
func (m *MetricsCollector) RecordRefundAttempt(result string) {
	if m == nil {
		return
	}
	m.refundAttempts.WithLabelValues(result).Inc()
}

func (m *MetricsCollector) RecordTradeNotification(source, result string) {
	if m == nil {
		return
	}
	m.tradeNotifications.WithLabelValues(source, result).Inc()
}

func (m *MetricsCollector) ObserveSweep(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordSnapshotLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.snapshotCache.WithLabelValues(result).Inc()
}

// getStatusCategory 获取状态分类
func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

var (
	globalCollector *MetricsCollector
	once            sync.Once
)

// GetGlobalCollector 获取注册在默认 Registry 上的全局指标收集器
func GetGlobalCollector() *MetricsCollector {
	once.Do(func() {
		globalCollector = NewMetricsCollector(prometheus.DefaultRegisterer)
	})
	return globalCollector
}
