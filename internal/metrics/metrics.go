package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/petrzlen/narrator/pkg/synthesizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry         *prometheus.Registry
	synthesisLatency *prometheus.HistogramVec
	chunks           *prometheus.CounterVec
	runs             *prometheus.CounterVec
	artifactSeconds  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		synthesisLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "narrator",
			Name:      "synthesis_request_seconds",
			Help:      "Latency of single synthesis requests.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"provider"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "narrator",
			Name:      "chunks_total",
			Help:      "Synthesized chunks by outcome.",
		}, []string{"provider", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "narrator",
			Name:      "runs_total",
			Help:      "Narration runs by outcome.",
		}, []string{"outcome"}),
		artifactSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "narrator",
			Name:      "artifact_duration_seconds",
			Help:      "Duration of produced audio.",
			Buckets:   prometheus.ExponentialBuckets(10, 3, 8),
		}),
	}
	m.registry.MustRegister(m.synthesisLatency, m.chunks, m.runs, m.artifactSeconds)
	return m
}

// ObserveSynthesis fits synthesizer.Instrument.
func (m *Metrics) ObserveSynthesis(provider string, took time.Duration, err error) {
	m.synthesisLatency.WithLabelValues(provider).Observe(took.Seconds())
	m.chunks.WithLabelValues(provider, outcome(err)).Inc()
}

func (m *Metrics) ObserveRun(artifactSeconds float64, err error) {
	m.runs.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.artifactSeconds.Observe(artifactSeconds)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, synthesizer.ErrAuth):
		return "auth"
	case errors.Is(err, synthesizer.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, synthesizer.ErrInputTooLong):
		return "input_too_long"
	case errors.Is(err, synthesizer.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
