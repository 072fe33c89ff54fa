// Package metrics 检索服务的 Prometheus 指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qgpt"

// Metrics 服务指标，每个实例持有独立的注册表。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// 检索指标
	SearchesTotal  *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec

	// 单条查询评估的召回率分布
	QueryRecall prometheus.Histogram
}

// New 创建指标并注册 Go 运行时与进程采集器。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of vector searches",
			},
			[]string{"db", "status"},
		),
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Query embedding plus vector search duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"db"},
		),
		QueryRecall: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_recall_at_k",
			Help:      "Recall@k of evaluated queries",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// RecordRequest 记录一次 HTTP 请求。
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordSearch 记录一次检索。
func (m *Metrics) RecordSearch(db string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SearchesTotal.WithLabelValues(db, status).Inc()
	m.SearchDuration.WithLabelValues(db).Observe(d.Seconds())
}

// RecordRecall 记录一次带真值评估的召回率。
func (m *Metrics) RecordRecall(recall float64) {
	if m == nil {
		return
	}
	m.QueryRecall.Observe(recall)
}

// Handler 返回 Prometheus 文本格式的导出处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层注册表。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
