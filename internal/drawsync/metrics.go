package drawsync

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run counters and durations labelled by game, trigger and status.
type Metrics struct {
	runs     *prometheus.CounterVec
	upserted *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var metricLabels = []string{"game", "trigger", "status"}

// NewMetrics registers the sync collectors on registerer. Collectors already registered are reused.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "draw_sync_runs_total",
		Help: "Sync runs by outcome.",
	}, metricLabels)
	upserted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "draw_sync_draws_upserted_total",
		Help: "Draws inserted or updated by sync runs.",
	}, metricLabels)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "draw_sync_duration_seconds",
		Help:    "Wall time of sync runs.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, metricLabels)

	var err error
	if runs, err = registerCollector(registerer, runs); err != nil {
		return nil, err
	}
	if upserted, err = registerCollector(registerer, upserted); err != nil {
		return nil, err
	}
	if duration, err = registerCollector(registerer, duration); err != nil {
		return nil, err
	}
	return &Metrics{runs: runs, upserted: upserted, duration: duration}, nil
}

func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

func (m *Metrics) observe(result GameResult) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"game":    result.Game.String(),
		"trigger": result.Trigger,
		"status":  string(result.Status),
	}
	m.runs.With(labels).Inc()
	m.upserted.With(labels).Add(float64(result.UpsertedCount))
	if !result.FinishedAt.IsZero() && !result.StartedAt.IsZero() {
		m.duration.With(labels).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	}
}
