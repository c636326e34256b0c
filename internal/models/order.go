package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// OrderProgressCompleted marks an order that no longer counts as pending
	OrderProgressCompleted = "COMPLETED"

	defaultFormatLb = 35
	smallFormatLb   = 10
)

// OrderSearchFilter holds search criteria for sales order queries
type OrderSearchFilter struct {
	Query       string `query:"q" json:"query,omitempty"`         // Matches demand id, customer, ship-to, customer PO
	PendingOnly bool   `query:"pending" json:"pending,omitempty"` // Skip completed orders
}

// OrderLine is one requested product on a sales order
type OrderLine struct {
	ID          string  `json:"id"`
	Material    string  `json:"material"`
	Description string  `json:"description"`
	Product     string  `json:"product,omitempty"`
	Cases       int     `json:"cases"`
	FormatLb    float64 `json:"formatLb"`
}

type SalesOrder struct {
	ID            string      `json:"id"`
	DemandID      string      `json:"demandId"`
	SalesRep      string      `json:"salesRep,omitempty"`
	CustomerName  string      `json:"customerName"`
	ShipTo        string      `json:"shipTo"`
	CustomerPO    string      `json:"customerPO,omitempty"`
	PickUpDate    string      `json:"pickUpDate,omitempty"`
	Incoterm      string      `json:"incoterm,omitempty"`
	Truck         string      `json:"truck,omitempty"`
	PortEntry     string      `json:"portEntry,omitempty"`
	Week          string      `json:"week,omitempty"`
	Brand         string      `json:"brand,omitempty"`
	Progress      string      `json:"progress,omitempty"`
	Lines         []OrderLine `json:"lines"`
	TrackingToken string      `json:"trackingToken"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Customer returns the name allocations against this order are booked to
func (o *SalesOrder) Customer() string {
	if strings.TrimSpace(o.ShipTo) != "" {
		return o.ShipTo
	}
	return strings.TrimSpace(o.CustomerName)
}

// Line looks up an order line by id
func (o *SalesOrder) Line(lineID string) (*OrderLine, bool) {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i], true
		}
	}
	return nil, false
}

// TotalCases sums the requested cases across all lines
func (o *SalesOrder) TotalCases() int {
	total := 0
	for _, line := range o.Lines {
		total += line.Cases
	}
	return total
}

// IsPending reports whether the order still counts as open work
func (o *SalesOrder) IsPending() bool {
	return !strings.EqualFold(o.Progress, OrderProgressCompleted)
}

// Matches reports whether the order satisfies the filter
func (o *SalesOrder) Matches(filter *OrderSearchFilter) bool {
	if filter == nil {
		return true
	}
	if filter.PendingOnly && !o.IsPending() {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{o.ID, o.DemandID, o.CustomerName, o.ShipTo, o.CustomerPO} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the order
func (o *SalesOrder) Clone() *SalesOrder {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return &c
}

// FormatFromDescription guesses pounds per case from a product description:
// "10" anywhere in the description means the 10 lb case, otherwise the 35 lb case.
func FormatFromDescription(description string) float64 {
	if strings.Contains(strings.ToLower(description), "10") {
		return smallFormatLb
	}
	return defaultFormatLb
}

// NormalizeOrder fills in line ids, case formats and the tracking token
func NormalizeOrder(o *SalesOrder) {
	if o.Lines == nil {
		o.Lines = []OrderLine{}
	}
	for i := range o.Lines {
		if o.Lines[i].ID == "" {
			o.Lines[i].ID = "line-" + uuid.NewString()
		}
		if o.Lines[i].FormatLb <= 0 {
			o.Lines[i].FormatLb = FormatFromDescription(o.Lines[i].Description)
		}
	}
	if o.TrackingToken == "" {
		o.TrackingToken = "order-" + uuid.NewString()
	}
	if o.DemandID == "" {
		o.DemandID = o.ID
	}
}
