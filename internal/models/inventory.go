package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventorySearchFilter holds search and filter criteria for lot queries
type InventorySearchFilter struct {
	Query      string         `query:"q" json:"query,omitempty"`            // Matches po, customer PO, customer, material, product, warehouse
	Warehouse  string         `query:"warehouse" json:"warehouse,omitempty"` // Exact warehouse filter
	Status     TrackingStatus `query:"status" json:"status,omitempty"`       // Exact status filter
	ActiveOnly bool           `query:"active" json:"active_only,omitempty"`  // Only lots with stock left
}

// InventoryLot is a unit of inventory identified by its purchase order reference
type InventoryLot struct {
	ID             string         `json:"id"`
	CustomID       string         `json:"customId,omitempty"`
	PO             string         `json:"po"`
	CustomerPO     string         `json:"customerPO"`
	AWB            *string        `json:"awb"`
	Customer       string         `json:"customer"`
	Warehouse      string         `json:"warehouse"`
	Location       string         `json:"location"`
	Plant          string         `json:"plant,omitempty"`
	ProductionDate string         `json:"productionDate,omitempty"`
	ETA            string         `json:"eta,omitempty"`
	Material       string         `json:"material"`
	Description    string         `json:"description"`
	Product        string         `json:"product"`
	Sector         string         `json:"sector,omitempty"`
	Trim           string         `json:"trim,omitempty"`
	Size           string         `json:"size,omitempty"`
	Packing        string         `json:"packing,omitempty"`
	CaseFormatLb   float64        `json:"caseFormatLb"`
	CasesOrdered   int            `json:"casesOrdered"`
	CasesAvailable int            `json:"casesAvailable"`
	Active         bool           `json:"active"`
	ClosedAt       *time.Time     `json:"closedAt,omitempty"`
	Status         TrackingStatus `json:"status"`
	StatusHistory  []StatusEntry  `json:"statusHistory"`
	TrackingToken  string         `json:"trackingToken"`
}

// Matches reports whether the lot satisfies the filter
func (l *InventoryLot) Matches(filter *InventorySearchFilter) bool {
	if filter == nil {
		return true
	}
	if filter.ActiveOnly && !l.Active {
		return false
	}
	if filter.Warehouse != "" && !strings.EqualFold(filter.Warehouse, l.Warehouse) {
		return false
	}
	if filter.Status != "" && filter.Status != l.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{l.PO, l.CustomerPO, l.Customer, l.Material, l.Product, l.Warehouse, l.CustomID} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// PipelineIndex returns the lot's position in the delivery pipeline
func (l *InventoryLot) PipelineIndex() int {
	return PipelineIndex(l.Status, l.StatusHistory)
}

// AvailablePounds converts the remaining cases to pounds
func (l *InventoryLot) AvailablePounds() decimal.Decimal {
	return PoundsFor(l.CasesAvailable, l.CaseFormatLb)
}

// PoundsFor converts a case count to pounds using the case format
func PoundsFor(cases int, caseFormatLb float64) decimal.Decimal {
	return decimal.NewFromInt(int64(cases)).Mul(decimal.NewFromFloat(caseFormatLb))
}

// Clone returns a deep copy of the lot
func (l *InventoryLot) Clone() *InventoryLot {
	c := *l
	if l.AWB != nil {
		awb := *l.AWB
		c.AWB = &awb
	}
	if l.ClosedAt != nil {
		closed := *l.ClosedAt
		c.ClosedAt = &closed
	}
	c.StatusHistory = append([]StatusEntry(nil), l.StatusHistory...)
	return &c
}

// NormalizeLot repairs lots decoded from storage or a remote snapshot: it synthesises
// a tracking token when absent and seeds an empty history with the current status.
func NormalizeLot(l *InventoryLot, now time.Time) {
	if l.TrackingToken == "" {
		l.TrackingToken = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = StatusConfirmed
	}
	if len(l.StatusHistory) == 0 {
		l.StatusHistory = []StatusEntry{{At: now, Status: l.Status}}
	}
	if l.CasesAvailable < 0 {
		l.CasesAvailable = 0
	}
}
