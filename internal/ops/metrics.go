// Package ops serves health and metrics endpoints and tracks pass counters.
package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks materializer pass outcomes.
type Metrics struct {
	PassesTotal        prometheus.Counter
	ProcessedTotal     prometheus.Counter
	ErrorsTotal        prometheus.Counter
	ExpensesCreated    prometheus.Counter
	TemplatesRetired   prometheus.Counter
	PassDurationSecond prometheus.Histogram
}

// NewMetrics registers the materializer metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PassesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coown_materializer_passes_total",
			Help: "Number of completed materialization passes.",
		}),
		ProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coown_materializer_templates_processed_total",
			Help: "Number of templates processed successfully.",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coown_materializer_template_errors_total",
			Help: "Number of per-template failures.",
		}),
		ExpensesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "coown_materializer_expenses_created_total",
			Help: "Number of expenses materialized.",
		}),
		TemplatesRetired: factory.NewCounter(prometheus.CounterOpts{
			Name: "coown_materializer_templates_retired_total",
			Help: "Number of templates deactivated after passing their end date.",
		}),
		PassDurationSecond: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coown_materializer_pass_duration_seconds",
			Help:    "Wall time of one materialization pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
