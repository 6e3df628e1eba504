package salon

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// Transaction smart codes written by checkout.
const (
	SaleType             = "SALE"
	SaleSmartCode        = "HERA.SALON.POS.TXN.SALE.V1"
	ServiceLineType      = "SERVICE"
	ServiceLineSmartCode = "HERA.SALON.POS.TXN.SERVICELINE.V1"
)

// Appointments is the appointment accessor with workflow helpers.
type Appointments struct {
	*Kind[Appointment]
}

// Booking describes a new appointment.
type Booking struct {
	Name       string
	StartAt    time.Time
	EndAt      time.Time
	Notes      string
	CustomerID string
	StaffID    string
	ServiceIDs []string
	BranchID   string
}

func (b Booking) fields() map[string]any {
	f := map[string]any{"start_at": b.StartAt}
	if !b.EndAt.IsZero() {
		f["end_at"] = b.EndAt
	}
	if b.Notes != "" {
		f["notes"] = b.Notes
	}
	return f
}

func (b Booking) relationships() map[string][]string {
	rels := map[string][]string{}
	put := func(relType string, ids ...string) {
		for _, id := range ids {
			if id != "" {
				rels[relType] = append(rels[relType], id)
			}
		}
	}
	put(RelForCustomer, b.CustomerID)
	put(RelWithStaff, b.StaffID)
	put(RelForService, b.ServiceIDs...)
	put(RelAtBranch, b.BranchID)
	return rels
}

// Book creates an appointment in the workflow's initial state.
func (a *Appointments) Book(ctx context.Context, b Booking) (Appointment, error) {
	name := b.Name
	if name == "" && !b.StartAt.IsZero() {
		name = "Appointment " + b.StartAt.UTC().Format("2006-01-02 15:04")
	}
	e, err := a.Create(ctx, name, b.fields(), b.relationships())
	if err != nil {
		return Appointment{}, err
	}
	return a.View(e), nil
}

// Move advances the appointment along the appointment workflow.
func (a *Appointments) Move(ctx context.Context, id, state string) (Appointment, error) {
	e, err := a.Transition(ctx, id, StatusField, state)
	if err != nil {
		return Appointment{}, err
	}
	return a.View(e), nil
}

// Override sets any known state, bypassing the transition rules.
func (a *Appointments) Override(ctx context.Context, id, state string) (Appointment, error) {
	e, err := a.OverrideState(ctx, id, StatusField, state)
	if err != nil {
		return Appointment{}, err
	}
	return a.View(e), nil
}

// Cancel moves the appointment to cancelled.
func (a *Appointments) Cancel(ctx context.Context, id string) (Appointment, error) {
	return a.Move(ctx, id, lifecycle.AppointmentCancelled)
}

// Checkout records a draft sale with one line per booked service, priced
// from the service, and moves the appointment to payment pending. The sale
// runs from the customer to the branch.
func (a *Appointments) Checkout(ctx context.Context, id string) (*types.Transaction, Appointment, error) {
	o := a.o
	appt, err := a.Get(ctx, id)
	if err != nil {
		return nil, Appointment{}, err
	}
	if err := lifecycle.Appointment.Validate(appt.State, lifecycle.AppointmentPaymentPending); err != nil {
		return nil, appt, err
	}
	if len(appt.ServiceIDs) == 0 {
		return nil, appt, &types.FieldError{Code: types.ErrInvalidLine, Field: RelForService, Msg: "appointment has no services"}
	}

	lines := make([]types.Line, 0, len(appt.ServiceIDs))
	for i, sid := range appt.ServiceIDs {
		e, err := o.Get(ctx, sid)
		if err != nil {
			return nil, appt, fmt.Errorf("service %s: %w", sid, err)
		}
		svc := ServiceFrom(e)
		lines = append(lines, types.Line{
			LineNumber: i + 1,
			LineType:   ServiceLineType,
			EntityID:   sid,
			SmartCode:  ServiceLineSmartCode,
			Quantity:   decimal.NewFromInt(1),
			UnitAmount: decimal.NewFromFloat(svc.Price),
		})
	}

	t, err := o.CreateTransaction(ctx, types.NewTransaction{
		TransactionType: SaleType,
		TransactionCode: appt.Code,
		SmartCode:       SaleSmartCode,
		SourceEntityID:  appt.CustomerID,
		TargetEntityID:  appt.BranchID,
		Lines:           lines,
	})
	if err != nil {
		return nil, appt, err
	}

	price, _ := t.TotalAmount.Float64()
	e, err := a.Update(ctx, id, orchestrator.UpdateRequest{
		Fields: map[string]any{"price": price, StatusField: lifecycle.AppointmentPaymentPending},
	})
	if err != nil {
		return t, appt, err
	}
	return t, a.View(e), nil
}
