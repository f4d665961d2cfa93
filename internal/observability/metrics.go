// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launchscope"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RPC metrics
	RPCCalls     *prometheus.CounterVec
	RPCRetries   *prometheus.CounterVec
	RPCQueueWait *prometheus.HistogramVec

	// Ingestion metrics
	Events              *prometheus.CounterVec
	BalanceResolutions  *prometheus.CounterVec
	LaunchesPublished   *prometheus.CounterVec
	TransfersClassified *prometheus.CounterVec

	// Listener metrics
	Reconnects          *prometheus.CounterVec
	ActiveSubscriptions *prometheus.GaugeVec

	// Backfill metrics
	BackfillCandidates *prometheus.CounterVec
	BackfillPageSize   *prometheus.GaugeVec

	// Refresh metrics
	Refreshes *prometheus.CounterVec
}

// NewMetrics registers all metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "RPC calls by chain, operation and outcome",
		}, []string{"chain", "op", "outcome"}),
		RPCRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "retries_total",
			Help:      "RPC retry attempts by chain and operation",
		}, []string{"chain", "op"}),
		RPCQueueWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "queue_wait_seconds",
			Help:      "Time a call spent queued before dispatch",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"chain"}),

		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_total",
			Help:      "Launch events by chain, source and outcome",
		}, []string{"chain", "source", "outcome"}),
		BalanceResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "balance_resolutions_total",
			Help:      "Balance resolutions by chain and method",
		}, []string{"chain", "method"}),
		LaunchesPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "launches_published_total",
			Help:      "Launch records written by chain and result",
		}, []string{"chain", "result"}),
		TransfersClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transfers_classified_total",
			Help:      "Creator transfers classified by category",
		}, []string{"chain", "category"}),

		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "reconnects_total",
			Help:      "Live subscription reconnect attempts",
		}, []string{"chain"}),
		ActiveSubscriptions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "active_subscriptions",
			Help:      "Currently open live subscriptions",
		}, []string{"chain"}),

		BackfillCandidates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "candidates_total",
			Help:      "Backfill candidates by outcome",
		}, []string{"chain", "outcome"}),
		BackfillPageSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "page_size",
			Help:      "Current backfill page size",
		}, []string{"chain"}),

		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Token stats refreshes by outcome",
		}, []string{"chain", "outcome"}),
	}
}

func (m *Metrics) RPCCall(chain, op, outcome string) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(chain, op, outcome).Inc()
}

func (m *Metrics) RPCRetry(chain, op string) {
	if m == nil {
		return
	}
	m.RPCRetries.WithLabelValues(chain, op).Inc()
}

func (m *Metrics) QueueWait(chain string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCQueueWait.WithLabelValues(chain).Observe(d.Seconds())
}

func (m *Metrics) Event(chain, source, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(chain, source, outcome).Inc()
}

func (m *Metrics) BalanceResolved(chain, method string) {
	if m == nil {
		return
	}
	m.BalanceResolutions.WithLabelValues(chain, method).Inc()
}

func (m *Metrics) Published(chain, result string) {
	if m == nil {
		return
	}
	m.LaunchesPublished.WithLabelValues(chain, result).Inc()
}

func (m *Metrics) TransferClassified(chain, category string) {
	if m == nil {
		return
	}
	m.TransfersClassified.WithLabelValues(chain, category).Inc()
}

func (m *Metrics) Reconnect(chain string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(chain).Inc()
}

func (m *Metrics) SubscriptionOpened(chain string) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.WithLabelValues(chain).Inc()
}

func (m *Metrics) SubscriptionClosed(chain string) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.WithLabelValues(chain).Dec()
}

func (m *Metrics) BackfillCandidate(chain, outcome string) {
	if m == nil {
		return
	}
	m.BackfillCandidates.WithLabelValues(chain, outcome).Inc()
}

func (m *Metrics) PageSize(chain string, size int) {
	if m == nil {
		return
	}
	m.BackfillPageSize.WithLabelValues(chain).Set(float64(size))
}

func (m *Metrics) Refresh(chain, outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(chain, outcome).Inc()
}

// Handler exposes the metrics of gatherer over HTTP.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
