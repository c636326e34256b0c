package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the (inventory, orders, assignments) triple published under a tracking token
type Snapshot struct {
	Inventory   []*InventoryLot `json:"inventory"`
	SalesOrders []*SalesOrder   `json:"sales_orders"`
	Assignments []*Assignment   `json:"assignments"`
}

// RawSnapshot is a snapshot as it was published. Each collection stays the JSON array the
// publisher sent, so fields and number formats this service does not model are kept.
type RawSnapshot struct {
	Inventory   json.RawMessage `json:"inventory"`
	SalesOrders json.RawMessage `json:"sales_orders"`
	Assignments json.RawMessage `json:"assignments"`
}

// CreateTrackingRequest is the body accepted by the snapshot publish endpoint
type CreateTrackingRequest struct {
	Token       string          `json:"token"`
	Inventory   json.RawMessage `json:"inventory"`
	SalesOrders json.RawMessage `json:"salesOrders"`
	Assignments json.RawMessage `json:"assignments"`
}

// TrackingRecord is one row of the remote trackings table
type TrackingRecord struct {
	TrackingToken string          `json:"tracking_token"`
	Inventory     json.RawMessage `json:"inventory"`
	SalesOrders   json.RawMessage `json:"sales_orders"`
	Assignments   json.RawMessage `json:"assignments"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// snapshotWire accepts both key spellings used by publishers
type snapshotWire struct {
	Inventory        json.RawMessage `json:"inventory"`
	SalesOrders      json.RawMessage `json:"sales_orders"`
	SalesOrdersCamel json.RawMessage `json:"salesOrders"`
	Assignments      json.RawMessage `json:"assignments"`
}

// NewSnapshot builds a snapshot with non-nil collections
func NewSnapshot(inventory []*InventoryLot, orders []*SalesOrder, assignments []*Assignment) *Snapshot {
	s := &Snapshot{Inventory: inventory, SalesOrders: orders, Assignments: assignments}
	s.sanitize()
	return s
}

// NewRawSnapshot checks that every collection is a JSON array. Missing ones become [].
func NewRawSnapshot(inventory, orders, assignments json.RawMessage) (*RawSnapshot, error) {
	s := &RawSnapshot{}
	var err error
	if s.Inventory, err = rawArray("inventory", inventory); err != nil {
		return nil, err
	}
	if s.SalesOrders, err = rawArray("sales orders", orders); err != nil {
		return nil, err
	}
	if s.Assignments, err = rawArray("assignments", assignments); err != nil {
		return nil, err
	}
	return s, nil
}

// EncodeSnapshot renders a typed snapshot in its published form
func EncodeSnapshot(snapshot *Snapshot) (*RawSnapshot, error) {
	if snapshot == nil {
		snapshot = NewSnapshot(nil, nil, nil)
	}
	inventory, err := json.Marshal(snapshot.Inventory)
	if err != nil {
		return nil, fmt.Errorf("encode inventory: %w", err)
	}
	orders, err := json.Marshal(snapshot.SalesOrders)
	if err != nil {
		return nil, fmt.Errorf("encode sales orders: %w", err)
	}
	assignments, err := json.Marshal(snapshot.Assignments)
	if err != nil {
		return nil, fmt.Errorf("encode assignments: %w", err)
	}
	return NewRawSnapshot(inventory, orders, assignments)
}

// DecodeRawSnapshot parses a snapshot body without typing its collections. Both
// "sales_orders" and "salesOrders" are accepted.
func DecodeRawSnapshot(data []byte) (*RawSnapshot, error) {
	var wire snapshotWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	orders := wire.SalesOrders
	if isEmptyJSON(orders) {
		orders = wire.SalesOrdersCamel
	}
	return NewRawSnapshot(wire.Inventory, orders, wire.Assignments)
}

// Decode types the collections
func (r *RawSnapshot) Decode() (*Snapshot, error) {
	return SnapshotFromParts(r.Inventory, r.SalesOrders, r.Assignments)
}

// DecodeSnapshot parses and types a snapshot body. Missing arrays default to empty and
// assignment items are never nil.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	raw, err := DecodeRawSnapshot(data)
	if err != nil {
		return nil, err
	}
	return raw.Decode()
}

// SnapshotFromParts decodes the three collections of a snapshot independently
func SnapshotFromParts(inventory, orders, assignments json.RawMessage) (*Snapshot, error) {
	s := &Snapshot{}
	if err := decodeArray(inventory, &s.Inventory); err != nil {
		return nil, fmt.Errorf("decode snapshot inventory: %w", err)
	}
	if err := decodeArray(orders, &s.SalesOrders); err != nil {
		return nil, fmt.Errorf("decode snapshot sales orders: %w", err)
	}
	if err := decodeArray(assignments, &s.Assignments); err != nil {
		return nil, fmt.Errorf("decode snapshot assignments: %w", err)
	}
	s.sanitize()
	return s, nil
}

// LotByToken finds the lot carrying the tracking token
func (s *Snapshot) LotByToken(token string) (*InventoryLot, bool) {
	for _, lot := range s.Inventory {
		if lot.TrackingToken == token {
			return lot, true
		}
	}
	return nil, false
}

func (s *Snapshot) sanitize() {
	if s.Inventory == nil {
		s.Inventory = []*InventoryLot{}
	}
	if s.SalesOrders == nil {
		s.SalesOrders = []*SalesOrder{}
	}
	if s.Assignments == nil {
		s.Assignments = []*Assignment{}
	}
	s.Inventory = compact(s.Inventory)
	s.SalesOrders = compact(s.SalesOrders)
	s.Assignments = compact(s.Assignments)
	for _, a := range s.Assignments {
		SanitizeAssignment(a)
	}
	for _, o := range s.SalesOrders {
		if o.Lines == nil {
			o.Lines = []OrderLine{}
		}
	}
}

func compact[T any](items []*T) []*T {
	out := make([]*T, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	return out
}

func isEmptyJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func rawArray(name string, raw json.RawMessage) (json.RawMessage, error) {
	if isEmptyJSON(raw) {
		return json.RawMessage("[]"), nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("snapshot %s must be a JSON array: %w", name, err)
	}
	return append(json.RawMessage(nil), raw...), nil
}

func decodeArray(raw json.RawMessage, dst any) error {
	if isEmptyJSON(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
