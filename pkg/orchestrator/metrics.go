package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// Metrics counts orchestrator operations and delete outcomes. A nil
// *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	deletes    *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hera",
			Subsystem: "orchestrator",
			Name:      "operations_total",
			Help:      "Orchestrator operations by entity type and result.",
		}, []string{"op", "entity_type", "result"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hera",
			Subsystem: "orchestrator",
			Name:      "delete_outcomes_total",
			Help:      "Delete outcomes: hard_deleted, archived, archived_fallback or failed.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.deletes)
	}
	return m
}

func (m *Metrics) observe(op Op, entityType string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(op), entityType, resultLabel(err)).Inc()
}

func (m *Metrics) observeDelete(k OutcomeKind) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(k.String()).Inc()
}

// resultLabel maps an error to a low-cardinality label value.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return types.KindName(err)
}
