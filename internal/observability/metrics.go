package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	transferCounter       *prometheus.CounterVec
	outboundHistogram     *prometheus.HistogramVec
	subscribersGauge      prometheus.Gauge
	notifyDroppedCounter  *prometheus.CounterVec
	ledgerAnomalyCounter  *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Transfers by direction and outcome (completed or the rejection code)",
		}, []string{"direction", "outcome"})

		outboundHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outbound_request_duration_seconds",
			Help:    "Latency of transfer deliveries to partner banks",
			Buckets: prometheus.DefBuckets,
		}, []string{"bank_code", "result"})

		subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notify_subscribers",
			Help: "Live event stream subscribers",
		})

		notifyDroppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_dropped_total",
			Help: "Events or subscribers dropped by the notification hub",
		}, []string{"reason"})

		ledgerAnomalyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_anomalies_total",
			Help: "Reconciliation findings by kind",
		}, []string{"kind"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferCounter,
			outboundHistogram,
			subscribersGauge,
			notifyDroppedCounter,
			ledgerAnomalyCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementTransfer(direction, outcome string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(direction, outcome).Inc()
}

func ObserveOutbound(bankCode, result string, duration time.Duration) {
	if outboundHistogram == nil {
		return
	}
	outboundHistogram.WithLabelValues(bankCode, result).Observe(duration.Seconds())
}

func SetSubscribers(n int) {
	if subscribersGauge == nil {
		return
	}
	subscribersGauge.Set(float64(n))
}

func IncrementNotifyDropped(reason string) {
	if notifyDroppedCounter == nil {
		return
	}
	notifyDroppedCounter.WithLabelValues(reason).Inc()
}

func IncrementLedgerAnomaly(kind string) {
	if ledgerAnomalyCounter == nil {
		return
	}
	ledgerAnomalyCounter.WithLabelValues(kind).Inc()
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
