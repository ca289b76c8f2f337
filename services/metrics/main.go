package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gohan_variantstore"

// Metrics are the counters of the load pipeline. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	StagedVariants  *prometheus.CounterVec
	SkippedVariants *prometheus.CounterVec
	MergedDocuments *prometheus.CounterVec
	Overlapped      prometheus.Counter
	NonInserted     prometheus.Counter

	OperationTotal   *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StagedVariants: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staged_variants_total",
			Help:      "Variants written to the stage",
		}, []string{"study"}),
		SkippedVariants: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_variants_total",
			Help:      "Variants not staged because of their type",
		}, []string{"type"}),
		MergedDocuments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_documents_total",
			Help:      "Canonical documents written by the merge",
		}, []string{"kind"}), // kind: created/updated
		Overlapped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlapped_variants_total",
			Help:      "Existing variants completed with overlapping calls",
		}),
		NonInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "non_inserted_variants_total",
			Help:      "Duplicated records left out of the merge",
		}),
		OperationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Stage and merge operations by final status",
		}, []string{"operation", "status"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of stage and merge operations",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 10),
		}, []string{"operation"}),
	}
}

func (m *Metrics) Staged(study string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.StagedVariants.WithLabelValues(study).Add(float64(n))
}

func (m *Metrics) Skipped(variantType string) {
	if m == nil {
		return
	}
	m.SkippedVariants.WithLabelValues(variantType).Inc()
}

func (m *Metrics) Merged(created int, updated int, overlapped int64, nonInserted int64) {
	if m == nil {
		return
	}
	m.MergedDocuments.WithLabelValues("created").Add(float64(created))
	m.MergedDocuments.WithLabelValues("updated").Add(float64(updated))
	m.Overlapped.Add(float64(overlapped))
	m.NonInserted.Add(float64(nonInserted))
}

// Operation records the outcome of a stage or merge started at `start`
func (m *Metrics) Operation(operation string, status string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationTotal.WithLabelValues(operation, status).Inc()
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
