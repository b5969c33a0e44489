// Package metrics exposes Prometheus instrumentation for the portal service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/portal-hub/internal/circuitbreaker"
	"github.com/portal-hub/internal/storage"
	"github.com/portal-hub/internal/types"
)

const namespace = "portal"

// Reply outcomes recorded by RecordAssistantReply
const (
	ReplyStored  = "stored"
	ReplyFailed  = "failed"
	ReplyDropped = "dropped"
)

// Metrics holds the collectors registered for one process
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	rateLimitChecks  *prometheus.CounterVec
	assistantReplies *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

// New registers the service collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests labeled by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		rateLimitChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_checks_total",
				Help:      "Rate limit decisions labeled by answering backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		assistantReplies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assistant_replies_total",
				Help:      "Assistant reply jobs labeled by outcome",
			},
			[]string{"outcome"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}
}

// RecordRequest counts one served HTTP request
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimit counts one rate limit decision
func (m *Metrics) RecordRateLimit(backend string, allowed bool) {
	if backend == "" {
		backend = "unknown"
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.rateLimitChecks.WithLabelValues(backend, outcome).Inc()
}

// RecordAssistantReply counts the outcome of one reply job
func (m *Metrics) RecordAssistantReply(outcome string) {
	m.assistantReplies.WithLabelValues(outcome).Inc()
}

// SetBreakerState publishes a circuit breaker transition.
// Its signature matches circuitbreaker.Config.OnStateChange.
func (m *Metrics) SetBreakerState(name string, _ circuitbreaker.State, to circuitbreaker.State) {
	var v float64
	switch to {
	case circuitbreaker.StateHalfOpen:
		v = 1
	case circuitbreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(name).Set(v)
}

// Handler serves the exposition format for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// entityCounter is the part of the store the collector reads
type entityCounter interface {
	Counts() storage.EntityCounts
}

// StoreCollector exports live record counts per entity kind at scrape time
type StoreCollector struct {
	store entityCounter
	desc  *prometheus.Desc
}

var _ prometheus.Collector = (*StoreCollector)(nil)

// NewStoreCollector creates a collector over store
func NewStoreCollector(store entityCounter) *StoreCollector {
	return &StoreCollector{
		store: store,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "records"),
			"Number of live records held by the entity store",
			[]string{"kind"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.store.Counts()
	values := map[types.EntityKind]int{
		types.KindUser:     counts.Users,
		types.KindSettings: counts.Settings,
		types.KindSite:     counts.Sites,
		types.KindMessage:  counts.Messages,
	}
	for _, kind := range types.AllEntityKinds {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(values[kind]), string(kind))
	}
}

// queueStats is the part of the reply queue the collector reads
type queueStats interface {
	GetQueueSize() int
	GetActiveJobs() int
}

// QueueCollector exports reply queue depth and running jobs at scrape time
type QueueCollector struct {
	queue   queueStats
	pending *prometheus.Desc
	active  *prometheus.Desc
}

var _ prometheus.Collector = (*QueueCollector)(nil)

// NewQueueCollector creates a collector over queue
func NewQueueCollector(queue queueStats) *QueueCollector {
	return &QueueCollector{
		queue: queue,
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "reply_queue", "pending"),
			"Assistant replies waiting for their run time or a worker",
			nil, nil,
		),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "reply_queue", "active"),
			"Assistant replies currently being generated",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.active
}

// Collect implements prometheus.Collector
func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.queue.GetQueueSize()))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(c.queue.GetActiveJobs()))
}
