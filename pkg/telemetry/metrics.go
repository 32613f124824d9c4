package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the provisioning engine.
// With metrics disabled every method is a no-op, so callers never
// branch on configuration.
type Metrics struct {
	config MetricsConfig

	// Procedure metrics
	stepsExecuted   *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	runsCompleted   *prometheus.CounterVec
	checkpointsMade *prometheus.CounterVec

	// Cache metrics
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	cacheStale    *prometheus.CounterVec
	fillRetries   *prometheus.CounterVec
	storePersists prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given
// configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "procedure_steps_total",
				Help:      "Total number of procedure steps executed",
			},
			[]string{"procedure", "state"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "procedure_step_duration_seconds",
				Help:      "Duration of procedure step execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"procedure", "state"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "procedure_runs_completed_total",
				Help:      "Total number of procedure runs completed",
			},
			[]string{"procedure", "outcome"},
		),
		checkpointsMade: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "procedure_checkpoints_total",
				Help:      "Total number of checkpoints persisted",
			},
			[]string{"procedure"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits on file entries",
			},
			[]string{"key"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses on file entries",
			},
			[]string{"key"},
		),
		cacheStale: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_stale_total",
				Help:      "Total number of stale file entries detected",
			},
			[]string{"key"},
		),
		fillRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_fill_retries_total",
				Help:      "Total number of cache fill retries",
			},
			[]string{"key"},
		),
		storePersists: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_persists_total",
				Help:      "Total number of atomic store writes",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.stepsExecuted,
		m.stepDuration,
		m.runsCompleted,
		m.checkpointsMade,
		m.cacheHits,
		m.cacheMisses,
		m.cacheStale,
		m.fillRetries,
		m.storePersists,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the Prometheus registry, or nil when metrics are
// disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStep records one executed procedure step.
func (m *Metrics) RecordStep(procedure, state string, seconds float64) {
	if m.registry == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(procedure, state).Inc()
	m.stepDuration.WithLabelValues(procedure, state).Observe(seconds)
}

// RecordRunCompleted records a finished procedure run with its
// outcome (finished, persistent, failed, already_completed).
func (m *Metrics) RecordRunCompleted(procedure, outcome string) {
	if m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(procedure, outcome).Inc()
}

// RecordCheckpoint records one persisted checkpoint.
func (m *Metrics) RecordCheckpoint(procedure string) {
	if m.registry == nil {
		return
	}
	m.checkpointsMade.WithLabelValues(procedure).Inc()
}

// RecordCacheHit records a valid cached file being reused.
func (m *Metrics) RecordCacheHit(key string) {
	if m.registry == nil {
		return
	}
	m.cacheHits.WithLabelValues(key).Inc()
}

// RecordCacheMiss records a cache fill for an absent entry.
func (m *Metrics) RecordCacheMiss(key string) {
	if m.registry == nil {
		return
	}
	m.cacheMisses.WithLabelValues(key).Inc()
}

// RecordCacheStale records a fingerprint mismatch on a file entry.
func (m *Metrics) RecordCacheStale(key string) {
	if m.registry == nil {
		return
	}
	m.cacheStale.WithLabelValues(key).Inc()
}

// RecordFillRetry records one operator-approved fill retry.
func (m *Metrics) RecordFillRetry(key string) {
	if m.registry == nil {
		return
	}
	m.fillRetries.WithLabelValues(key).Inc()
}

// RecordStorePersist records one atomic store write.
func (m *Metrics) RecordStorePersist() {
	if m.registry == nil {
		return
	}
	m.storePersists.Inc()
}
