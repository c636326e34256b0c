package models

import (
	"fmt"
	"strconv"
	"strings"
)

type AssignmentType string

const (
	AssignmentTypeOrder AssignmentType = "ORDER"
	AssignmentTypeSpot  AssignmentType = "SPOT"
)

type AssignmentState string

const (
	AssignmentStateActive AssignmentState = "ACTIVE"
	AssignmentStateVoid   AssignmentState = "VOID"
)

const assignmentIDPrefix = "ASG-"

// AllocationItem commits cases of one lot. It keeps a copy of the lot descriptors so the
// item stays readable after the lot or the order is gone.
type AllocationItem struct {
	LotID    string `json:"lotId"`
	PO       string `json:"po"`
	Material string `json:"material"`
	Product  string `json:"product"`
	Cases    int    `json:"cases"`
}

// Assignment is a commitment of lot cases to a sales order or a spot sale
type Assignment struct {
	ID           string           `json:"id"`
	Date         string           `json:"date"`
	Type         AssignmentType   `json:"type"`
	SalesOrderID string           `json:"salesOrderId,omitempty"`
	SpotClient   string           `json:"spotClient,omitempty"`
	SpotRef      string           `json:"spotRef,omitempty"`
	Customer     string           `json:"customer"`
	State        AssignmentState  `json:"state"`
	Items        []AllocationItem `json:"items"`
}

// IsActive reports whether the assignment currently holds stock
func (a *Assignment) IsActive() bool {
	return a.State == AssignmentStateActive
}

// TotalCases sums the cases across all items
func (a *Assignment) TotalCases() int {
	total := 0
	for _, item := range a.Items {
		total += item.Cases
	}
	return total
}

// CasesForLot sums the cases the assignment holds from one lot
func (a *Assignment) CasesForLot(lotID string) int {
	total := 0
	for _, item := range a.Items {
		if item.LotID == lotID {
			total += item.Cases
		}
	}
	return total
}

// References reports whether any item points at the lot
func (a *Assignment) References(lotID string) bool {
	for _, item := range a.Items {
		if item.LotID == lotID {
			return true
		}
	}
	return false
}

// CasesByLot groups the item cases per lot id
func (a *Assignment) CasesByLot() map[string]int {
	out := make(map[string]int, len(a.Items))
	for _, item := range a.Items {
		out[item.LotID] += item.Cases
	}
	return out
}

// Clone returns a deep copy of the assignment
func (a *Assignment) Clone() *Assignment {
	c := *a
	c.Items = append([]AllocationItem{}, a.Items...)
	return &c
}

// SanitizeAssignment makes sure Items is never nil
func SanitizeAssignment(a *Assignment) {
	if a.Items == nil {
		a.Items = []AllocationItem{}
	}
}

// NextAssignmentID returns the next ASG-0000 style id after the highest one in use.
// Counting the collection instead would collide with surviving ids after a delete.
func NextAssignmentID(assignments []*Assignment) string {
	highest := 0
	for _, a := range assignments {
		if !strings.HasPrefix(a.ID, assignmentIDPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(a.ID, assignmentIDPrefix))
		if err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%04d", assignmentIDPrefix, highest+1)
}

// CommittedForLine sums the cases of the line's material held by ACTIVE assignments of the order
func CommittedForLine(orderID string, line OrderLine, assignments []*Assignment) int {
	committed := 0
	for _, a := range assignments {
		if a == nil || !a.IsActive() || a.SalesOrderID != orderID {
			continue
		}
		for _, item := range a.Items {
			if item.Material == line.Material {
				committed += item.Cases
			}
		}
	}
	return committed
}

// RemainingForLine returns how many cases of the line are still unallocated, never below zero
func RemainingForLine(orderID string, line OrderLine, assignments []*Assignment) int {
	remaining := line.Cases - CommittedForLine(orderID, line, assignments)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AssignmentFilter narrows assignment listings
type AssignmentFilter struct {
	SalesOrderID string          `query:"salesOrderId" json:"salesOrderId,omitempty"`
	LotID        string          `query:"lotId" json:"lotId,omitempty"`
	State        AssignmentState `query:"state" json:"state,omitempty"`
}

// Matches reports whether the assignment satisfies the filter
func (a *Assignment) Matches(filter *AssignmentFilter) bool {
	if filter == nil {
		return true
	}
	if filter.SalesOrderID != "" && a.SalesOrderID != filter.SalesOrderID {
		return false
	}
	if filter.State != "" && a.State != filter.State {
		return false
	}
	if filter.LotID != "" && !a.References(filter.LotID) {
		return false
	}
	return true
}
