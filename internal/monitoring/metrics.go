package monitoring

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_ledger_operations_total",
			Help: "Total number of ledger operations by outcome",
		},
		[]string{"operation", "status"},
	)

	ledgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_api_ledger_operation_duration_seconds",
			Help:    "Ledger operation duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"operation"},
	)

	reconciliationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_reconciliation_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"status"},
	)

	reconciliationDiscrepancies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_api_reconciliation_discrepancies_total",
			Help: "Total number of balance discrepancies found",
		},
	)

	cacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_api_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	memoryUsageGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_api_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
	)

	goroutineCountGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_api_goroutines_count",
			Help: "Current number of goroutines",
		},
	)

	uptimeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_api_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	startTime = time.Now()
)

func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, fmt.Sprintf("%d", statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func RecordLedgerOperation(operation, status string) {
	ledgerOperationsTotal.WithLabelValues(operation, status).Inc()
}

func ObserveLedgerOperation(operation string, duration time.Duration) {
	ledgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordReconciliationRun(status string, discrepancies int) {
	reconciliationRunsTotal.WithLabelValues(status).Inc()
	if discrepancies > 0 {
		reconciliationDiscrepancies.Add(float64(discrepancies))
	}
}

func RecordCacheOperation(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

func RecordSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	memoryUsageGauge.Set(float64(memStats.Alloc))
	goroutineCountGauge.Set(float64(runtime.NumGoroutine()))
	uptimeGauge.Set(time.Since(startTime).Seconds())
}

// StartSystemMetricsRecording refreshes process gauges on a fixed
// interval for the lifetime of the process.
func StartSystemMetricsRecording(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			RecordSystemMetrics()
		}
	}()
}
