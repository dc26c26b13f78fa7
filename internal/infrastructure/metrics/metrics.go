// Package metrics exposes Prometheus counters for the sales engine and HTTP layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"salesflow/internal/core/entity"
	"salesflow/internal/domain/sales"
)

// Metrics implements sales.Metrics.
type Metrics struct {
	documentsCreated   *prometheus.CounterVec
	statusChanges      *prometheus.CounterVec
	conversions        *prometheus.CounterVec
	notificationFailed *prometheus.CounterVec
	creditExceeded     prometheus.Counter
	driftCorrected     prometheus.Counter

	httpDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		documentsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "salesflow_documents_created_total",
			Help: "Sales documents created, by type",
		}, []string{"type"}),
		statusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "salesflow_status_changes_total",
			Help: "Status transitions, by source and target status",
		}, []string{"from", "to", "inventory_updated"}),
		conversions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "salesflow_conversions_total",
			Help: "Documents converted to sales, by source type",
		}, []string{"source_type"}),
		notificationFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "salesflow_notifications_failed_total",
			Help: "Customer notifications that could not be delivered",
		}, []string{"event"}),
		creditExceeded: f.NewCounter(prometheus.CounterOpts{
			Name: "salesflow_credit_limit_exceeded_total",
			Help: "Saved sales whose customer is over the credit limit",
		}),
		driftCorrected: f.NewCounter(prometheus.CounterOpts{
			Name: "salesflow_stock_drift_corrected_total",
			Help: "Stock rows rebuilt by reconciliation",
		}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "salesflow_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "salesflow_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) DocumentCreated(docType entity.DocumentType) {
	m.documentsCreated.WithLabelValues(string(docType)).Inc()
}

func (m *Metrics) StatusChanged(from, to sales.Status, inventoryUpdated bool) {
	m.statusChanges.WithLabelValues(string(from), string(to), strconv.FormatBool(inventoryUpdated)).Inc()
}

func (m *Metrics) DocumentConverted(sourceType entity.DocumentType) {
	m.conversions.WithLabelValues(string(sourceType)).Inc()
}

func (m *Metrics) NotificationFailed(eventType string) {
	m.notificationFailed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) CreditLimitExceeded() {
	m.creditExceeded.Inc()
}

// StockDriftCorrected counts rows fixed by the reconcile job.
func (m *Metrics) StockDriftCorrected(n int) {
	m.driftCorrected.Add(float64(n))
}

// ObserveHTTP records one served request. path is the route template.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
	m.httpRequests.WithLabelValues(method, path, code).Inc()
}

var _ sales.Metrics = (*Metrics)(nil)

// PoolCollector reports pgxpool statistics at scrape time.
type PoolCollector struct {
	pool *pgxpool.Pool

	total    *prometheus.Desc
	idle     *prometheus.Desc
	acquired *prometheus.Desc
	max      *prometheus.Desc
}

// NewPoolCollector creates a collector for pool.
func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{
		pool:     pool,
		total:    prometheus.NewDesc("salesflow_db_pool_total_conns", "Open connections", nil, nil),
		idle:     prometheus.NewDesc("salesflow_db_pool_idle_conns", "Idle connections", nil, nil),
		acquired: prometheus.NewDesc("salesflow_db_pool_acquired_conns", "Connections in use", nil, nil),
		max:      prometheus.NewDesc("salesflow_db_pool_max_conns", "Pool size limit", nil, nil),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.acquired
	ch <- c.max
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
}
