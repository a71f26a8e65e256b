package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	queueItems         *prometheus.GaugeVec
	drainTotal         *prometheus.CounterVec
	drainDuration      *prometheus.HistogramVec
	resultsDropped     prometheus.Counter
	retrievalFallbacks *prometheus.CounterVec
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	throttleTotal      *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors with reg. A nil reg uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		queueItems: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailtriage_queue_items",
				Help: "Items currently queued, by class (total, urgent)",
			},
			[]string{"class"},
		),
		drainTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_drain_total",
				Help: "Handler invocations by outcome",
			},
			[]string{"outcome"},
		),
		drainDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailtriage_drain_duration_seconds",
				Help:    "Duration of handler invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		resultsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailtriage_results_dropped_total",
				Help: "Drain results dropped because the results channel was full",
			},
		),
		retrievalFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_retrieval_fallback_total",
				Help: "Fixed fallback content substituted while building context, by stage",
			},
			[]string{"stage"},
		),
		generationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_generation_requests_total",
				Help: "Generative-text calls by provider, model and status",
			},
			[]string{"provider", "model", "status", "error_type"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailtriage_generation_duration_seconds",
				Help:    "Duration of generative-text calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
		throttleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtriage_generation_throttle_total",
				Help: "Rate limiting events in front of generative-text providers",
			},
			[]string{"provider", "reason"},
		),
	}
}

func (p *PrometheusRecorder) SetQueueDepth(total, urgent int) {
	p.queueItems.WithLabelValues("total").Set(float64(total))
	p.queueItems.WithLabelValues("urgent").Set(float64(urgent))
}

func (p *PrometheusRecorder) ObserveDrain(outcome string, duration time.Duration) {
	p.drainTotal.WithLabelValues(outcome).Inc()
	p.drainDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncDroppedResult() {
	p.resultsDropped.Inc()
}

func (p *PrometheusRecorder) IncRetrievalFallback(stage string) {
	p.retrievalFallbacks.WithLabelValues(stage).Inc()
}

// ObserveGeneration records metrics for a completed generative-text call.
func (p *PrometheusRecorder) ObserveGeneration(provider, model string, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.generationTotal.WithLabelValues(provider, model, status, errorType).Inc()
	p.generationDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncThrottle(provider, reason string) {
	p.throttleTotal.WithLabelValues(provider, reason).Inc()
}
