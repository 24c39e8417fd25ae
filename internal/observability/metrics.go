package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	idempotencyCounter      *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
	holdsFinalizedCounter   *prometheus.CounterVec
	pendingImbalanceCounter prometheus.Counter
	unmatchedTopupCounter   *prometheus.CounterVec
	withdrawalQueueGauge    prometheus.Gauge
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		holdsFinalizedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holds_finalized_total",
			Help: "Holds moved to a terminal status",
		}, []string{"status", "trigger"})

		pendingImbalanceCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pending_balance_imbalance_total",
			Help: "Number of times an account's pending balance diverged from its open holds",
		})

		unmatchedTopupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "topup_reconciliation_unmatched_total",
			Help: "External transactions parked for operator review",
		}, []string{"reason"})

		withdrawalQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "withdrawal_pending_queue_size",
			Help: "Current number of withdrawal requests awaiting an operator",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			idempotencyCounter,
			workerRunCounter,
			holdsFinalizedCounter,
			pendingImbalanceCounter,
			unmatchedTopupCounter,
			withdrawalQueueGauge,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementHoldFinalized(status, trigger string) {
	if holdsFinalizedCounter == nil {
		return
	}
	holdsFinalizedCounter.WithLabelValues(status, trigger).Inc()
}

func IncrementPendingImbalance() {
	if pendingImbalanceCounter == nil {
		return
	}
	pendingImbalanceCounter.Inc()
}

func IncrementUnmatchedTopup(reason string) {
	if unmatchedTopupCounter == nil {
		return
	}
	unmatchedTopupCounter.WithLabelValues(reason).Inc()
}

func SetWithdrawalQueueSize(size int64) {
	if withdrawalQueueGauge == nil {
		return
	}
	withdrawalQueueGauge.Set(float64(size))
}
