package salon

import (
	"encoding/json"
	"time"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// Header holds the entity columns shared by every view.
type Header struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Code      string       `json:"code,omitempty"`
	Status    types.Status `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func headerOf(e *types.Entity) Header {
	return Header{ID: e.ID, Name: e.EntityName, Code: e.EntityCode, Status: e.Status, UpdatedAt: e.UpdatedAt}
}

// Branch is a salon location.
type Branch struct {
	Header
	Address      string          `json:"address"`
	Phone        string          `json:"phone,omitempty"`
	OpeningHours json.RawMessage `json:"opening_hours,omitempty"`
}

// BranchFrom maps a BRANCH entity.
func BranchFrom(e *types.Entity) Branch {
	return Branch{
		Header:       headerOf(e),
		Address:      text(e, "address"),
		Phone:        text(e, "phone"),
		OpeningHours: rawJSON(e, "opening_hours"),
	}
}

// Category groups products or services.
type Category struct {
	Header
	Kind      string  `json:"kind"`
	Color     string  `json:"color,omitempty"`
	SortOrder float64 `json:"sort_order"`
}

// CategoryFrom maps a CATEGORY entity.
func CategoryFrom(e *types.Entity) Category {
	return Category{
		Header:    headerOf(e),
		Kind:      text(e, "kind"),
		Color:     text(e, "color"),
		SortOrder: number(e, "sort_order"),
	}
}

// Product is a retail item.
type Product struct {
	Header
	Price         float64  `json:"price"`
	Cost          float64  `json:"cost,omitempty"`
	StockQuantity float64  `json:"stock_quantity"`
	Barcode       string   `json:"barcode,omitempty"`
	Brand         string   `json:"brand,omitempty"`
	CategoryID    string   `json:"category_id,omitempty"`
	BranchIDs     []string `json:"branch_ids,omitempty"`
}

// ProductFrom maps a PRODUCT entity.
func ProductFrom(e *types.Entity) Product {
	return Product{
		Header:        headerOf(e),
		Price:         number(e, "price"),
		Cost:          number(e, "cost"),
		StockQuantity: number(e, "stock_quantity"),
		Barcode:       text(e, "barcode"),
		Brand:         text(e, "brand"),
		CategoryID:    first(e, RelHasCategory),
		BranchIDs:     e.TargetIDs(RelStockAt),
	}
}

// Margin returns price minus cost.
func (p Product) Margin() float64 { return p.Price - p.Cost }

// Service is a bookable treatment.
type Service struct {
	Header
	Price           float64  `json:"price"`
	DurationMinutes float64  `json:"duration_minutes"`
	Description     string   `json:"description,omitempty"`
	BookableOnline  bool     `json:"bookable_online"`
	CategoryID      string   `json:"category_id,omitempty"`
	BranchIDs       []string `json:"branch_ids,omitempty"`
	StaffIDs        []string `json:"staff_ids,omitempty"`
}

// ServiceFrom maps a SERVICE entity.
func ServiceFrom(e *types.Entity) Service {
	return Service{
		Header:          headerOf(e),
		Price:           number(e, "price"),
		DurationMinutes: number(e, "duration_minutes"),
		Description:     text(e, "description"),
		BookableOnline:  boolean(e, "bookable_online"),
		CategoryID:      first(e, RelHasCategory),
		BranchIDs:       e.TargetIDs(RelAvailableAt),
		StaffIDs:        e.TargetIDs(RelPerformedBy),
	}
}

// Duration returns the service length.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes * float64(time.Minute))
}

// Staff is a team member.
type Staff struct {
	Header
	Role           string    `json:"role"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	HireDate       time.Time `json:"hire_date,omitempty"`
	CommissionRate float64   `json:"commission_rate,omitempty"`
	BranchIDs      []string  `json:"branch_ids,omitempty"`
}

// StaffFrom maps a STAFF entity.
func StaffFrom(e *types.Entity) Staff {
	return Staff{
		Header:         headerOf(e),
		Role:           text(e, "role"),
		Phone:          text(e, "phone"),
		Email:          text(e, "email"),
		HireDate:       date(e, "hire_date"),
		CommissionRate: number(e, "commission_rate"),
		BranchIDs:      e.TargetIDs(RelMemberOf),
	}
}

// Customer is a client of the salon.
type Customer struct {
	Header
	Phone            string          `json:"phone,omitempty"`
	Email            string          `json:"email,omitempty"`
	Birthday         time.Time       `json:"birthday,omitempty"`
	LoyaltyPoints    float64         `json:"loyalty_points"`
	VIP              bool            `json:"vip"`
	Preferences      json.RawMessage `json:"preferences,omitempty"`
	PreferredStaffID string          `json:"preferred_staff_id,omitempty"`
	HomeBranchID     string          `json:"home_branch_id,omitempty"`
}

// CustomerFrom maps a CUSTOMER entity.
func CustomerFrom(e *types.Entity) Customer {
	return Customer{
		Header:           headerOf(e),
		Phone:            text(e, "phone"),
		Email:            text(e, "email"),
		Birthday:         date(e, "birthday"),
		LoyaltyPoints:    number(e, "loyalty_points"),
		VIP:              boolean(e, "vip"),
		Preferences:      rawJSON(e, "preferences"),
		PreferredStaffID: first(e, RelPreferredStaff),
		HomeBranchID:     first(e, RelHomeBranch),
	}
}

// Appointment is a booking.
type Appointment struct {
	Header
	State      string    `json:"state"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at,omitempty"`
	Price      float64   `json:"price,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	StaffID    string    `json:"staff_id,omitempty"`
	ServiceIDs []string  `json:"service_ids,omitempty"`
	BranchID   string    `json:"branch_id,omitempty"`
}

// AppointmentFrom maps an APPOINTMENT entity.
func AppointmentFrom(e *types.Entity) Appointment {
	return Appointment{
		Header:     headerOf(e),
		State:      text(e, StatusField),
		StartAt:    date(e, "start_at"),
		EndAt:      date(e, "end_at"),
		Price:      number(e, "price"),
		Notes:      text(e, "notes"),
		CustomerID: first(e, RelForCustomer),
		StaffID:    first(e, RelWithStaff),
		ServiceIDs: e.TargetIDs(RelForService),
		BranchID:   first(e, RelAtBranch),
	}
}

func text(e *types.Entity, name string) string {
	s, _ := e.Field(name).(string)
	return s
}

func number(e *types.Entity, name string) float64 {
	n, _ := e.Field(name).(float64)
	return n
}

func boolean(e *types.Entity, name string) bool {
	b, _ := e.Field(name).(bool)
	return b
}

func date(e *types.Entity, name string) time.Time {
	t, _ := e.Field(name).(time.Time)
	return t
}

func rawJSON(e *types.Entity, name string) json.RawMessage {
	b, _ := e.Field(name).(json.RawMessage)
	return b
}

func first(e *types.Entity, relType string) string {
	if ids := e.TargetIDs(relType); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
