package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/sst/sst/internal/domain/safety"
)

var tracer = otel.Tracer("sst.workflow")

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sst_workflow_transitions_total",
		Help: "Transition evaluations by kind, transition and outcome.",
	}, []string{"kind", "transition", "outcome"})

	fieldUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sst_workflow_field_updates_total",
		Help: "In-state field edits by kind and outcome.",
	}, []string{"kind", "outcome"})

	advisoriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sst_workflow_advisories_total",
		Help: "Advisories returned with accepted edits.",
	}, []string{"code"})
)

// outcome labels an error for metrics.
func outcome(err error, noop bool) string {
	switch {
	case err != nil:
		if c := safety.CodeOf(err); c != "" {
			return string(c)
		}
		return "error"
	case noop:
		return "noop"
	default:
		return "ok"
	}
}
