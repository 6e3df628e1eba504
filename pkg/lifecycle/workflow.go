// Package lifecycle validates status changes. It holds the generic entity
// lifecycle (active, archived, deleted) and pluggable domain workflows such
// as appointment booking and transaction settlement. Every check is a pure
// table lookup performed before any write is attempted.
package lifecycle

import (
	"fmt"
	"sort"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// Reason classifies why a transition was refused.
type Reason string

// Refusal reasons. Terminal and unknown-state refusals are permanent; a
// backward move may succeed if the caller asks for a different target.
const (
	ReasonUnknownState Reason = "unknown_state"
	ReasonTerminal     Reason = "terminal_state"
	ReasonBackward     Reason = "backward_move"
	ReasonNotAllowed   Reason = "not_allowed"
)

// IllegalTransitionError reports a refused transition from one state to
// another. It matches types.ErrTransitionRefused and types.ErrIllegalTransition.
type IllegalTransitionError struct {
	Workflow string
	From     string
	To       string
	Reason   Reason
}

func (e *IllegalTransitionError) Error() string {
	var why string
	switch e.Reason {
	case ReasonUnknownState:
		why = "unknown state"
	case ReasonTerminal:
		why = fmt.Sprintf("%s is terminal", e.From)
	case ReasonBackward:
		why = "cannot move backward"
	default:
		why = "transition not allowed"
	}
	return fmt.Sprintf("%s: %s -> %s: %s", e.Workflow, e.From, e.To, why)
}

// Unwrap returns the refused-transition code.
func (e *IllegalTransitionError) Unwrap() error { return types.ErrTransitionRefused }

// Permanent reports whether no later request from the same state can succeed.
func (e *IllegalTransitionError) Permanent() bool {
	return e.Reason == ReasonTerminal || e.Reason == ReasonUnknownState
}

// Workflow is a directed transition graph over named states. States are
// listed in forward order; escape states count as forward from anywhere.
// A Workflow is immutable after construction.
type Workflow struct {
	name    string
	initial string
	states  []string
	order   map[string]int
	edges   map[string]map[string]bool
	escapes map[string]bool
}

// NewWorkflow builds a workflow. states gives the forward order, edges the
// allowed targets per state, escapes the states that are always a forward
// move. States without outgoing edges are terminal.
func NewWorkflow(name, initial string, states []string, edges map[string][]string, escapes ...string) (*Workflow, error) {
	w := &Workflow{
		name:    name,
		initial: initial,
		states:  append([]string(nil), states...),
		order:   make(map[string]int, len(states)),
		edges:   make(map[string]map[string]bool, len(edges)),
		escapes: make(map[string]bool, len(escapes)),
	}
	for i, s := range states {
		if _, dup := w.order[s]; dup {
			return nil, fmt.Errorf("workflow %s: duplicate state %q", name, s)
		}
		w.order[s] = i
	}
	if _, ok := w.order[initial]; !ok {
		return nil, fmt.Errorf("workflow %s: initial state %q not declared", name, initial)
	}
	for from, tos := range edges {
		if _, ok := w.order[from]; !ok {
			return nil, fmt.Errorf("workflow %s: edge from undeclared state %q", name, from)
		}
		set := make(map[string]bool, len(tos))
		for _, to := range tos {
			if _, ok := w.order[to]; !ok {
				return nil, fmt.Errorf("workflow %s: edge to undeclared state %q", name, to)
			}
			set[to] = true
		}
		w.edges[from] = set
	}
	for _, s := range escapes {
		if _, ok := w.order[s]; !ok {
			return nil, fmt.Errorf("workflow %s: escape state %q not declared", name, s)
		}
		w.escapes[s] = true
	}
	return w, nil
}

// MustWorkflow is NewWorkflow for package-level declarations.
func MustWorkflow(name, initial string, states []string, edges map[string][]string, escapes ...string) *Workflow {
	w, err := NewWorkflow(name, initial, states, edges, escapes...)
	if err != nil {
		panic(err)
	}
	return w
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Initial returns the state new records start in.
func (w *Workflow) Initial() string { return w.initial }

// States returns the states in forward order.
func (w *Workflow) States() []string { return append([]string(nil), w.states...) }

// Known reports whether s is a declared state.
func (w *Workflow) Known(s string) bool {
	_, ok := w.order[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (w *Workflow) Terminal(s string) bool {
	return w.Known(s) && len(w.edges[s]) == 0
}

// Next returns the states reachable from s in forward order.
func (w *Workflow) Next(s string) []string {
	next := make([]string, 0, len(w.edges[s]))
	for to := range w.edges[s] {
		next = append(next, to)
	}
	sort.Slice(next, func(i, j int) bool { return w.order[next[i]] < w.order[next[j]] })
	return next
}

// CanTransition reports whether the table allows from -> to.
func (w *Workflow) CanTransition(from, to string) bool {
	return w.edges[from][to]
}

// IsForwardMove reports whether to lies after from in the forward order.
// Escape states are forward from any state.
func (w *Workflow) IsForwardMove(from, to string) bool {
	if w.escapes[to] {
		return true
	}
	fi, ok := w.order[from]
	if !ok {
		return false
	}
	ti, ok := w.order[to]
	if !ok {
		return false
	}
	return ti > fi
}

// Validate returns nil when from -> to is allowed, otherwise an
// *IllegalTransitionError carrying the reason.
func (w *Workflow) Validate(from, to string) error {
	refuse := func(r Reason) error {
		return &IllegalTransitionError{Workflow: w.name, From: from, To: to, Reason: r}
	}
	if !w.Known(from) || !w.Known(to) {
		return refuse(ReasonUnknownState)
	}
	if w.Terminal(from) {
		return refuse(ReasonTerminal)
	}
	if w.CanTransition(from, to) {
		return nil
	}
	if from != to && !w.IsForwardMove(from, to) {
		return refuse(ReasonBackward)
	}
	return refuse(ReasonNotAllowed)
}

// Appointment workflow states.
const (
	AppointmentDraft          = "draft"
	AppointmentBooked         = "booked"
	AppointmentCheckedIn      = "checked_in"
	AppointmentInProgress     = "in_progress"
	AppointmentPaymentPending = "payment_pending"
	AppointmentCompleted      = "completed"
	AppointmentCancelled      = "cancelled"
	AppointmentNoShow         = "no_show"
)

// Appointment is the booking workflow. Any state may skip ahead; none may
// move back. Cancelled and no-show are escapes, not part of the linear order.
var Appointment = MustWorkflow("appointment", AppointmentDraft,
	[]string{
		AppointmentDraft, AppointmentBooked, AppointmentCheckedIn, AppointmentInProgress,
		AppointmentPaymentPending, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow,
	},
	map[string][]string{
		AppointmentDraft: {AppointmentBooked, AppointmentCheckedIn, AppointmentInProgress,
			AppointmentPaymentPending, AppointmentCompleted, AppointmentCancelled},
		AppointmentBooked: {AppointmentCheckedIn, AppointmentInProgress, AppointmentPaymentPending,
			AppointmentCompleted, AppointmentCancelled, AppointmentNoShow},
		AppointmentCheckedIn: {AppointmentInProgress, AppointmentPaymentPending, AppointmentCompleted,
			AppointmentCancelled, AppointmentNoShow},
		AppointmentInProgress:     {AppointmentPaymentPending, AppointmentCompleted, AppointmentCancelled},
		AppointmentPaymentPending: {AppointmentCompleted, AppointmentCancelled},
	},
	AppointmentCancelled, AppointmentNoShow,
)

// Transaction is the settlement workflow for transactions. Completed
// transactions leave only through a correcting reversal or void.
var Transaction = MustWorkflow("transaction", types.TxnStatusDraft,
	[]string{
		types.TxnStatusDraft, types.TxnStatusPending, types.TxnStatusCompleted,
		types.TxnStatusCancelled, types.TxnStatusReversed, types.TxnStatusVoided,
	},
	map[string][]string{
		types.TxnStatusDraft:     {types.TxnStatusPending, types.TxnStatusCompleted, types.TxnStatusCancelled},
		types.TxnStatusPending:   {types.TxnStatusCompleted, types.TxnStatusCancelled},
		types.TxnStatusCompleted: {types.TxnStatusReversed, types.TxnStatusVoided},
	},
	types.TxnStatusCancelled,
)

// Builtin returns the workflows shipped with the module, keyed by name.
func Builtin() map[string]*Workflow {
	return map[string]*Workflow{
		Appointment.Name(): Appointment,
		Transaction.Name(): Transaction,
	}
}
