package models

// Collection names the persisted collections, one blob each
type Collection string

const (
	CollectionInventory    Collection = "inventory"
	CollectionSalesOrders  Collection = "sales_orders"
	CollectionAssignments  Collection = "assignments"
	CollectionArchivedLots Collection = "archived_lots"
)

// AllCollections lists every collection in load order
var AllCollections = []Collection{
	CollectionInventory,
	CollectionSalesOrders,
	CollectionAssignments,
	CollectionArchivedLots,
}

// State is the full set of collections the service owns
type State struct {
	Inventory    []*InventoryLot `json:"inventory"`
	SalesOrders  []*SalesOrder   `json:"sales_orders"`
	Assignments  []*Assignment   `json:"assignments"`
	ArchivedLots []string        `json:"archived_lots"`
}

// NewState returns an empty state with non-nil collections
func NewState() *State {
	return &State{
		Inventory:    []*InventoryLot{},
		SalesOrders:  []*SalesOrder{},
		Assignments:  []*Assignment{},
		ArchivedLots: []string{},
	}
}

// Clone returns a deep copy of the state
func (s *State) Clone() *State {
	c := &State{
		Inventory:    make([]*InventoryLot, 0, len(s.Inventory)),
		SalesOrders:  make([]*SalesOrder, 0, len(s.SalesOrders)),
		Assignments:  make([]*Assignment, 0, len(s.Assignments)),
		ArchivedLots: append([]string{}, s.ArchivedLots...),
	}
	for _, lot := range s.Inventory {
		c.Inventory = append(c.Inventory, lot.Clone())
	}
	for _, order := range s.SalesOrders {
		c.SalesOrders = append(c.SalesOrders, order.Clone())
	}
	for _, a := range s.Assignments {
		c.Assignments = append(c.Assignments, a.Clone())
	}
	return c
}

// Lot finds a lot by id
func (s *State) Lot(id string) (*InventoryLot, bool) {
	for _, lot := range s.Inventory {
		if lot.ID == id {
			return lot, true
		}
	}
	return nil, false
}

// LotByToken finds a lot by its tracking token
func (s *State) LotByToken(token string) (*InventoryLot, bool) {
	if token == "" {
		return nil, false
	}
	for _, lot := range s.Inventory {
		if lot.TrackingToken == token {
			return lot, true
		}
	}
	return nil, false
}

// Order finds a sales order by id
func (s *State) Order(id string) (*SalesOrder, bool) {
	for _, order := range s.SalesOrders {
		if order.ID == id {
			return order, true
		}
	}
	return nil, false
}

// Assignment finds an assignment by id and returns its index
func (s *State) Assignment(id string) (*Assignment, int, bool) {
	for i, a := range s.Assignments {
		if a.ID == id {
			return a, i, true
		}
	}
	return nil, -1, false
}

// IsArchived reports whether the lot was removed from the tracking worklist
func (s *State) IsArchived(lotID string) bool {
	for _, id := range s.ArchivedLots {
		if id == lotID {
			return true
		}
	}
	return false
}

// Snapshot returns the publishable triple of the current state
func (s *State) Snapshot() *Snapshot {
	return NewSnapshot(s.Inventory, s.SalesOrders, s.Assignments)
}

// LotTokens lists the distinct non-empty tracking tokens of all lots
func (s *State) LotTokens() []string {
	seen := make(map[string]struct{}, len(s.Inventory))
	tokens := make([]string, 0, len(s.Inventory))
	for _, lot := range s.Inventory {
		if lot.TrackingToken == "" {
			continue
		}
		if _, ok := seen[lot.TrackingToken]; ok {
			continue
		}
		seen[lot.TrackingToken] = struct{}{}
		tokens = append(tokens, lot.TrackingToken)
	}
	return tokens
}

// Sanitize repairs collections decoded from storage
func (s *State) Sanitize() {
	if s.Inventory == nil {
		s.Inventory = []*InventoryLot{}
	}
	if s.SalesOrders == nil {
		s.SalesOrders = []*SalesOrder{}
	}
	if s.Assignments == nil {
		s.Assignments = []*Assignment{}
	}
	if s.ArchivedLots == nil {
		s.ArchivedLots = []string{}
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
