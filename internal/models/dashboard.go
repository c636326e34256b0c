package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dashboard holds the operator KPIs and breakdowns. AssignmentCount covers every
// assignment whatever its state; AssignmentsByState splits it.
type Dashboard struct {
	TotalCasesAvailable  int                `json:"totalCasesAvailable"`
	TotalPoundsAvailable decimal.Decimal    `json:"totalPoundsAvailable"`
	ActiveLots           int                `json:"activeLots"`
	AssignmentCount      int                `json:"assignmentCount"`
	PendingOrders        int                `json:"pendingOrders"`
	ByWarehouse          []WarehouseSummary `json:"byWarehouse"`
	ByStatus             []StatusSummary    `json:"byStatus"`
	AssignmentsByState   map[string]int     `json:"assignmentsByState"`
	Categories           []CategorySummary  `json:"categories"`
	GeneratedAt          time.Time          `json:"generatedAt"`
}

type WarehouseSummary struct {
	Warehouse string          `json:"warehouse"`
	Lots      int             `json:"lots"`
	Cases     int             `json:"cases"`
	Pounds    decimal.Decimal `json:"pounds"`
}

type StatusSummary struct {
	Status TrackingStatus `json:"status"`
	Label  string         `json:"label"`
	Lots   int            `json:"lots"`
	Cases  int            `json:"cases"`
}

// CategorySummary groups active stock by sector, trim and size, listed in that order
type CategorySummary struct {
	Key    string          `json:"key"`
	Sector string          `json:"sector"`
	Trim   string          `json:"trim"`
	Size   string          `json:"size"`
	Cases  int             `json:"cases"`
	Pounds decimal.Decimal `json:"pounds"`
}
