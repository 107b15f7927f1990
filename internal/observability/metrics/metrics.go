package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"

	OutcomeSuccess      = "success"
	OutcomeFailed       = "failed"
	OutcomeEmailFailed  = "email_failed"
	OutcomeSkipped      = "skipped"
	OutcomeLimitReached = "limit_reached"
)

// GenerationMetrics counts invoice generation outcomes and lease contention.
type GenerationMetrics struct {
	outcomes       *prometheus.CounterVec
	leaseConflicts *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

var (
	generationMetricsOnce sync.Once
	generationMetrics     *GenerationMetrics
)

// Generation returns the singleton generation metrics registry.
func Generation() *GenerationMetrics {
	return GenerationWithConfig(Config{})
}

func GenerationWithConfig(cfg Config) *GenerationMetrics {
	generationMetricsOnce.Do(func() {
		generationMetrics = NewGenerationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return generationMetrics
}

// ResetGenerationMetricsForTest resets the generation metrics singleton for tests.
func ResetGenerationMetricsForTest() {
	generationMetricsOnce = sync.Once{}
	generationMetrics = nil
}

// NewGenerationMetrics registers a fresh set of collectors on registerer.
func NewGenerationMetrics(registerer prometheus.Registerer, cfg Config) *GenerationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	m := &GenerationMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "invoicely_generation_attempts_total",
			Help:        "Invoice generation attempts by trigger and outcome.",
			ConstLabels: constLabels,
		}, []string{"trigger", "outcome"}),
		leaseConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "invoicely_generation_conflicts_total",
			Help:        "Generation attempts skipped because another worker held the schedule.",
			ConstLabels: constLabels,
		}, []string{"trigger"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "invoicely_generation_duration_seconds",
			Help:        "Time spent generating one invoice, email included.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"trigger"}),
	}
	registerer.MustRegister(m.outcomes, m.leaseConflicts, m.duration)
	return m
}

func (m *GenerationMetrics) IncOutcome(trigger, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(trigger, outcome).Inc()
}

func (m *GenerationMetrics) IncConflict(trigger string) {
	if m == nil {
		return
	}
	m.leaseConflicts.WithLabelValues(trigger).Inc()
}

func (m *GenerationMetrics) ObserveDuration(trigger string, seconds float64) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(trigger).Observe(seconds)
}

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
