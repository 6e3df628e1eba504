package salon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/hera/internal/sqlstore"
	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func newSalon(t *testing.T) *Salon {
	t.Helper()
	store := sqlstore.NewBackend()
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { store.Detach() })

	reg, err := Registry()
	require.NoError(t, err)
	return New(orchestrator.New(store, reg))
}

func TestRegistry(t *testing.T) {
	reg, err := Registry()
	require.NoError(t, err)
	assert.Equal(t, []string{"APPOINTMENT", "BRANCH", "CATEGORY", "CUSTOMER", "PRODUCT", "SERVICE", "STAFF"}, reg.EntityTypes())

	appt, err := reg.Resolve(TypeAppointment)
	require.NoError(t, err)
	w, ok := reg.FieldWorkflow(appt, StatusField)
	require.True(t, ok)
	assert.Equal(t, lifecycle.Appointment.Name(), w.Name())

	product, err := reg.Resolve(TypeProduct)
	require.NoError(t, err)
	assert.False(t, product.Permissions.Allows(preset.ActionDelete, "stylist"))
	assert.True(t, product.Permissions.Allows(preset.ActionDelete, "manager"))
}

func TestRegistryExtraPresets(t *testing.T) {
	reg, err := Registry(preset.EntitySchema{EntityType: "VOUCHER", SmartCode: "HERA.SALON.CRM.ENT.VOUCHER.V1"})
	require.NoError(t, err)
	assert.Contains(t, reg.EntityTypes(), "VOUCHER")

	_, err = Registry(preset.EntitySchema{EntityType: TypeProduct})
	assert.ErrorIs(t, err, types.ErrDuplicatePreset)
}

func TestProductView(t *testing.T) {
	s := newSalon(t)
	ctx := context.Background()

	cat, err := s.Categories.Create(ctx, "Hair care", nil, nil)
	require.NoError(t, err)
	branch, err := s.Branches.Create(ctx, "Downtown", map[string]any{"address": "1 Main St"}, nil)
	require.NoError(t, err)

	_, err = s.Products.Create(ctx, "Argan oil", map[string]any{"price": 24.0, "cost": 9.5, "brand": "Luma"},
		map[string][]string{RelHasCategory: {cat.ID}, RelStockAt: {branch.ID}})
	require.NoError(t, err)

	products, err := s.Products.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]
	assert.Equal(t, "Argan oil", p.Name)
	assert.Equal(t, 24.0, p.Price)
	assert.Equal(t, 14.5, p.Margin())
	assert.Equal(t, 0.0, p.StockQuantity)
	assert.Equal(t, cat.ID, p.CategoryID)
	assert.Equal(t, []string{branch.ID}, p.BranchIDs)
	assert.Equal(t, types.StatusActive, p.Status)

	cats, err := s.Categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "product", cats[0].Kind)
}

func TestBranchRequiresAddress(t *testing.T) {
	s := newSalon(t)
	_, err := s.Branches.Create(context.Background(), "Uptown", nil, nil)
	assert.ErrorIs(t, err, types.ErrMissingRequiredField)
}

func TestProductCategoryMustBeCategory(t *testing.T) {
	s := newSalon(t)
	ctx := context.Background()
	branch, err := s.Branches.Create(ctx, "Downtown", map[string]any{"address": "1 Main St"}, nil)
	require.NoError(t, err)

	_, err = s.Products.Create(ctx, "Shampoo", map[string]any{"price": 10},
		map[string][]string{RelHasCategory: {branch.ID}})
	assert.ErrorIs(t, err, types.ErrTypeMismatch)
}

func TestKindGet(t *testing.T) {
	s := newSalon(t)
	ctx := context.Background()
	c, err := s.Customers.Create(ctx, "Ana", map[string]any{"email": "ana@example.com"}, nil)
	require.NoError(t, err)

	got, err := s.Customers.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.False(t, got.VIP)

	_, err = s.Staff.Get(ctx, c.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

type bookingFixture struct {
	branch, customer, staff, cut, colour *types.Entity
}

func seedBooking(t *testing.T, s *Salon) bookingFixture {
	t.Helper()
	ctx := context.Background()
	var f bookingFixture
	var err error
	f.branch, err = s.Branches.Create(ctx, "Downtown", map[string]any{"address": "1 Main St"}, nil)
	require.NoError(t, err)
	f.customer, err = s.Customers.Create(ctx, "Ana", nil, map[string][]string{RelHomeBranch: {f.branch.ID}})
	require.NoError(t, err)
	f.staff, err = s.Staff.Create(ctx, "Bea", nil, map[string][]string{RelMemberOf: {f.branch.ID}})
	require.NoError(t, err)
	f.cut, err = s.Services.Create(ctx, "Cut", map[string]any{"price": 40}, nil)
	require.NoError(t, err)
	f.colour, err = s.Services.Create(ctx, "Colour", map[string]any{"price": 65.5, "duration_minutes": 90}, nil)
	require.NoError(t, err)
	return f
}

func TestAppointmentWorkflow(t *testing.T) {
	s := newSalon(t)
	ctx := context.Background()
	f := seedBooking(t, s)

	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	appt, err := s.Appointments.Book(ctx, Booking{
		StartAt:    start,
		CustomerID: f.customer.ID,
		StaffID:    f.staff.ID,
		ServiceIDs: []string{f.cut.ID, f.colour.ID},
		BranchID:   f.branch.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.AppointmentDraft, appt.State)
	assert.Equal(t, "Appointment 2026-03-14 10:00", appt.Name)
	assert.True(t, start.Equal(appt.StartAt))
	assert.Equal(t, []string{f.cut.ID, f.colour.ID}, appt.ServiceIDs)

	appt, err = s.Appointments.Move(ctx, appt.ID, lifecycle.AppointmentCheckedIn)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.AppointmentCheckedIn, appt.State)

	_, err = s.Appointments.Move(ctx, appt.ID, lifecycle.AppointmentBooked)
	assert.ErrorIs(t, err, types.ErrIllegalTransition)

	txn, appt, err := s.Appointments.Checkout(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, SaleType, txn.TransactionType)
	assert.Equal(t, "105.5", txn.TotalAmount.String())
	assert.Equal(t, f.customer.ID, txn.SourceEntityID)
	assert.Equal(t, f.branch.ID, txn.TargetEntityID)
	require.Len(t, txn.Lines, 2)
	assert.Equal(t, f.colour.ID, txn.Lines[1].EntityID)
	assert.Equal(t, lifecycle.AppointmentPaymentPending, appt.State)
	assert.Equal(t, 105.5, appt.Price)

	_, _, err = s.Appointments.Checkout(ctx, appt.ID)
	assert.ErrorIs(t, err, types.ErrIllegalTransition)

	appt, err = s.Appointments.Move(ctx, appt.ID, lifecycle.AppointmentCompleted)
	require.NoError(t, err)
	_, err = s.Appointments.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, types.ErrIllegalTransition)

	appt, err = s.Appointments.Override(ctx, appt.ID, lifecycle.AppointmentCancelled)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.AppointmentCancelled, appt.State)
}

func TestCheckoutWithoutServices(t *testing.T) {
	s := newSalon(t)
	ctx := context.Background()
	appt, err := s.Appointments.Book(ctx, Booking{Name: "Walk-in", StartAt: time.Now()})
	require.NoError(t, err)

	_, _, err = s.Appointments.Checkout(ctx, appt.ID)
	assert.ErrorIs(t, err, types.ErrInvalidLine)
}

func TestReferencedServiceFallsBackToArchive(t *testing.T) {
	s := newSalon(t)
	ctx := context.Background()
	f := seedBooking(t, s)
	_, err := s.Appointments.Book(ctx, Booking{StartAt: time.Now(), ServiceIDs: []string{f.cut.ID}})
	require.NoError(t, err)

	out := s.Services.Delete(ctx, f.cut.ID, types.DeleteOptions{HardDelete: true})
	require.True(t, out.Success())
	assert.Equal(t, orchestrator.ArchivedFallback, out.Kind)

	services, err := s.Services.List(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Colour", services[0].Name)
	assert.Equal(t, 90*time.Minute, services[0].Duration())
}
