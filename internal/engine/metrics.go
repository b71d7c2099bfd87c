package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tonimelisma/phylomerge/internal/merge"
	"github.com/tonimelisma/phylomerge/internal/model"
)

// Merge outcomes, used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeValidation  = "validation"
	OutcomeNotFound    = "not_found"
	OutcomeConsistency = "consistency"
	OutcomeError       = "error"
)

// Metrics holds the merge instrumentation registered with one registry.
type Metrics struct {
	merges   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	stamps   prometheus.Counter
	entities *prometheus.CounterVec
}

// NewMetrics registers merge metrics with reg. A nil reg yields metrics that
// are recorded but never exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		merges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "phylomerge_merges_total",
			Help: "Merges attempted, by outcome",
		}, []string{"outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phylomerge_merge_duration_seconds",
			Help:    "Wall time of one merge transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"outcome"}),
		stamps: f.NewCounter(prometheus.CounterOpts{
			Name: "phylomerge_versions_stamped_total",
			Help: "Entities that received a new version stamp",
		}),
		entities: f.NewCounterVec(prometheus.CounterOpts{
			Name: "phylomerge_entities_total",
			Help: "Entities created, updated or removed by merges",
		}, []string{"kind", "change"}),
	}
}

// Outcome classifies a merge error for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, model.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, model.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, model.ErrConsistency):
		return OutcomeConsistency
	default:
		return OutcomeError
	}
}

func (m *Metrics) observe(err error, elapsed time.Duration, report *merge.Report) {
	outcome := Outcome(err)
	m.merges.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil || report == nil {
		return
	}

	m.stamps.Add(float64(report.Stamped))

	for _, kind := range report.Kinds() {
		m.add(kind, "created", report.Created[kind])
		m.add(kind, "updated", report.Updated[kind])
		m.add(kind, "removed", report.Removed[kind])
	}
}

func (m *Metrics) add(kind model.Kind, change string, n int) {
	if n > 0 {
		m.entities.WithLabelValues(string(kind), change).Add(float64(n))
	}
}
