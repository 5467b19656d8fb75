package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	operationDuration *prom.HistogramVec
	operationResults  *prom.CounterVec
	cacheHits         *prom.CounterVec
	cacheMisses       *prom.CounterVec
	downloadDuration  *prom.HistogramVec
	downloadRetries   prom.Counter
}

// NewPrometheusRecorder constructs and registers the schemactl metrics on the
// given registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	pr := &PrometheusRecorder{
		operationDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "schemactl",
			Name:      "operation_duration_seconds",
			Help:      "Duration of schema operations including cache and tool resolution",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		operationResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "schemactl",
			Name:      "operation_results_total",
			Help:      "Operation results by outcome",
		}, []string{"kind", "result"}),
		cacheHits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "schemactl",
			Name:      "cache_hits_total",
			Help:      "Operations served from the result cache",
		}, []string{"kind"}),
		cacheMisses: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "schemactl",
			Name:      "cache_misses_total",
			Help:      "Operations that had to execute the engine",
		}, []string{"kind"}),
		downloadDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "schemactl",
			Name:      "download_duration_seconds",
			Help:      "Duration of engine downloads",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		downloadRetries: prom.NewCounter(prom.CounterOpts{
			Namespace: "schemactl",
			Name:      "download_retries_total",
			Help:      "Download attempts beyond the first",
		}),
	}

	reg.MustRegister(
		pr.operationDuration,
		pr.operationResults,
		pr.cacheHits,
		pr.cacheMisses,
		pr.downloadDuration,
		pr.downloadRetries,
	)

	return pr
}

func (p *PrometheusRecorder) ObserveOperationDuration(kind string, d time.Duration) {
	if p == nil || p.operationDuration == nil {
		return
	}

	p.operationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncOperationResult(kind string, result ResultLabel) {
	if p == nil || p.operationResults == nil {
		return
	}

	p.operationResults.WithLabelValues(kind, string(result)).Inc()
}

func (p *PrometheusRecorder) IncCacheHit(kind string) {
	if p == nil || p.cacheHits == nil {
		return
	}

	p.cacheHits.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncCacheMiss(kind string) {
	if p == nil || p.cacheMisses == nil {
		return
	}

	p.cacheMisses.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) ObserveDownloadDuration(d time.Duration, success bool) {
	if p == nil || p.downloadDuration == nil {
		return
	}

	result := "failed"
	if success {
		result = "success"
	}

	p.downloadDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDownloadRetry() {
	if p == nil || p.downloadRetries == nil {
		return
	}

	p.downloadRetries.Inc()
}

// HTTPHandler returns an http.Handler serving the registry in Prometheus
// exposition format. Used by watch mode's metrics endpoint.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
