package services

import (
	"context"
	"strings"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/metrics"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/sirupsen/logrus"
)

const assignmentDateLayout = "2006-01-02"

// AllocationRequest asks for cases of one lot
type AllocationRequest struct {
	LotID string `json:"lotId" validate:"required"`
	Cases int    `json:"cases" validate:"gt=0"`
}

type CreateAssignmentInput struct {
	Type         models.AssignmentType `json:"type" validate:"required,oneof=ORDER SPOT"`
	SalesOrderID string                `json:"salesOrderId"`
	SpotClient   string                `json:"spotClient"`
	SpotRef      string                `json:"spotRef"`
	Date         string                `json:"date"`
	Items        []AllocationRequest   `json:"items" validate:"required,min=1,dive"`
}

type QuickAssignInput struct {
	LotID        string `json:"lotId" validate:"required"`
	SalesOrderID string `json:"salesOrderId" validate:"required"`
	OrderLineID  string `json:"orderLineId" validate:"required"`
	Cases        int    `json:"cases" validate:"gt=0"`
}

// QuickAssignResult carries the new assignment and how it sits against the order line
type QuickAssignResult struct {
	Assignment *models.Assignment `json:"assignment"`
	// Remaining is what the line still needs after this allocation
	Remaining int `json:"remaining"`
	// OverAllocated is set when the allocation exceeded what the line still needed
	OverAllocated bool `json:"overAllocated"`
}

// LotSuggestion proposes a lot and a case count for an order line
type LotSuggestion struct {
	Lot *models.InventoryLot `json:"lot"`
	// Cases is the smaller of the lot's stock and what the line still needs
	Cases     int `json:"cases"`
	Remaining int `json:"remaining"`
}

// LedgerService keeps lot stock and assignments consistent. It is the only writer of
// casesAvailable, active and assignment state.
type LedgerService interface {
	CreateAssignment(ctx context.Context, input *CreateAssignmentInput) (*models.Assignment, error)
	VoidAssignment(ctx context.Context, id string) (*models.Assignment, error)
	ReactivateAssignment(ctx context.Context, id string) (*models.Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
	QuickAssign(ctx context.Context, input *QuickAssignInput) (*QuickAssignResult, error)
	RemainingForLine(ctx context.Context, orderID, lineID string) (int, error)
	// SuggestLot picks the earliest-ETA lot with stock of the line's material
	SuggestLot(ctx context.Context, orderID, lineID string) (*LotSuggestion, error)
	GetAssignment(ctx context.Context, id string) (*models.Assignment, error)
	ListAssignments(ctx context.Context, filter *models.AssignmentFilter) ([]*models.Assignment, error)
}

type ledgerService struct {
	store   repositories.StateStore
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewLedgerService(store repositories.StateStore, m *metrics.Metrics, logger logrus.FieldLogger) LedgerService {
	return &ledgerService{
		store:   store,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *ledgerService) mutate(ctx context.Context, operation string, fn func(state *models.State) error) error {
	err := s.store.Update(ctx, fn)
	s.metrics.ObserveLedger(operation, err)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"operation": operation}).WithError(err).Debug("ledger operation rejected")
	}
	return err
}

func (s *ledgerService) CreateAssignment(ctx context.Context, input *CreateAssignmentInput) (*models.Assignment, error) {
	if input == nil {
		return nil, common.NewValidationError("request", "is required")
	}
	var created *models.Assignment
	err := s.mutate(ctx, "create", func(state *models.State) error {
		a, err := s.createInState(state, input)
		if err != nil {
			return err
		}
		created = a.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// createInState validates and books an assignment against state. Nothing in state is
// touched until every lot has been checked.
func (s *ledgerService) createInState(state *models.State, input *CreateAssignmentInput) (*models.Assignment, error) {
	if len(input.Items) == 0 {
		return nil, common.NewValidationError("items", "at least one item is required")
	}
	for _, item := range input.Items {
		if strings.TrimSpace(item.LotID) == "" {
			return nil, common.NewValidationError("items.lotId", "is required")
		}
		if item.Cases <= 0 {
			return nil, common.NewValidationError("items.cases", "must be positive for lot %s", item.LotID)
		}
	}

	customer, err := resolveCustomer(state, input)
	if err != nil {
		return nil, err
	}

	// items on the same lot draw from the same stock
	requested := make(map[string]int, len(input.Items))
	var order []string
	for _, item := range input.Items {
		if _, seen := requested[item.LotID]; !seen {
			order = append(order, item.LotID)
		}
		requested[item.LotID] += item.Cases
	}
	lots := make(map[string]*models.InventoryLot, len(order))
	for _, lotID := range order {
		lot, ok := state.Lot(lotID)
		if !ok {
			return nil, common.NewValidationError("items.lotId", "lot %s does not exist", lotID)
		}
		if lot.CasesAvailable < requested[lotID] {
			return nil, &common.InsufficientStockError{
				LotID:     lot.ID,
				PO:        lot.PO,
				Requested: requested[lotID],
				Available: lot.CasesAvailable,
			}
		}
		lots[lotID] = lot
	}

	items := make([]models.AllocationItem, 0, len(input.Items))
	for _, item := range input.Items {
		lot := lots[item.LotID]
		items = append(items, models.AllocationItem{
			LotID:    lot.ID,
			PO:       lot.PO,
			Material: lot.Material,
			Product:  lot.Product,
			Cases:    item.Cases,
		})
	}
	for lotID, cases := range requested {
		adjustStock(lots[lotID], -cases)
	}

	date := strings.TrimSpace(input.Date)
	if date == "" {
		date = s.now().Format(assignmentDateLayout)
	}
	a := &models.Assignment{
		ID:       models.NextAssignmentID(state.Assignments),
		Date:     date,
		Type:     input.Type,
		Customer: customer,
		State:    models.AssignmentStateActive,
		Items:    items,
	}
	if input.Type == models.AssignmentTypeOrder {
		a.SalesOrderID = input.SalesOrderID
	} else {
		a.SpotClient = strings.TrimSpace(input.SpotClient)
		a.SpotRef = strings.TrimSpace(input.SpotRef)
	}
	state.Assignments = append(state.Assignments, a)
	return a, nil
}

func resolveCustomer(state *models.State, input *CreateAssignmentInput) (string, error) {
	switch input.Type {
	case models.AssignmentTypeOrder:
		order, ok := state.Order(input.SalesOrderID)
		if !ok {
			return "", common.NewValidationError("salesOrderId", "sales order %q does not exist", input.SalesOrderID)
		}
		customer := order.Customer()
		if customer == "" {
			return "", common.NewValidationError("salesOrderId", "sales order %s has no customer", order.ID)
		}
		return customer, nil
	case models.AssignmentTypeSpot:
		client := strings.TrimSpace(input.SpotClient)
		if client == "" {
			return "", common.NewValidationError("spotClient", "is required for spot sales")
		}
		return client, nil
	}
	return "", common.NewValidationError("type", "must be ORDER or SPOT")
}

// adjustStock applies a case delta and recomputes active
func adjustStock(lot *models.InventoryLot, delta int) {
	lot.CasesAvailable += delta
	if lot.CasesAvailable < 0 {
		lot.CasesAvailable = 0
	}
	lot.Active = lot.CasesAvailable > 0
}

func (s *ledgerService) VoidAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	var voided *models.Assignment
	err := s.mutate(ctx, "void", func(state *models.State) error {
		a, _, ok := state.Assignment(id)
		if !ok {
			return common.NewNotFoundError("assignment", id)
		}
		if a.State != models.AssignmentStateActive {
			return common.NewInvalidStateError("assignment", id, string(a.State), "only ACTIVE assignments can be voided")
		}
		for _, item := range a.Items {
			lot, ok := state.Lot(item.LotID)
			if !ok {
				continue
			}
			lot.CasesAvailable += item.Cases
			lot.Active = true
		}
		a.State = models.AssignmentStateVoid
		voided = a.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func (s *ledgerService) ReactivateAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	var reactivated *models.Assignment
	err := s.mutate(ctx, "reactivate", func(state *models.State) error {
		a, _, ok := state.Assignment(id)
		if !ok {
			return common.NewNotFoundError("assignment", id)
		}
		if a.State != models.AssignmentStateVoid {
			return common.NewInvalidStateError("assignment", id, string(a.State), "only VOID assignments can be reactivated")
		}

		needed := a.CasesByLot()
		lots := make(map[string]*models.InventoryLot, len(needed))
		for _, item := range a.Items {
			if _, checked := lots[item.LotID]; checked {
				continue
			}
			lot, ok := state.Lot(item.LotID)
			if !ok {
				return &common.InsufficientStockError{LotID: item.LotID, PO: item.PO, Requested: needed[item.LotID]}
			}
			if lot.CasesAvailable < needed[item.LotID] {
				return &common.InsufficientStockError{
					LotID:     lot.ID,
					PO:        lot.PO,
					Requested: needed[item.LotID],
					Available: lot.CasesAvailable,
				}
			}
			lots[item.LotID] = lot
		}
		for lotID, cases := range needed {
			adjustStock(lots[lotID], -cases)
		}
		a.State = models.AssignmentStateActive
		reactivated = a.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reactivated, nil
}

// DeleteAssignment removes an assignment for good. An ACTIVE assignment gives its cases
// back first; a VOID one already did when it was voided.
func (s *ledgerService) DeleteAssignment(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete", func(state *models.State) error {
		a, idx, ok := state.Assignment(id)
		if !ok {
			return common.NewNotFoundError("assignment", id)
		}
		if a.IsActive() {
			for lotID, cases := range a.CasesByLot() {
				if lot, ok := state.Lot(lotID); ok {
					adjustStock(lot, cases)
				}
			}
		}
		state.Assignments = append(state.Assignments[:idx], state.Assignments[idx+1:]...)
		return nil
	})
}

func (s *ledgerService) QuickAssign(ctx context.Context, input *QuickAssignInput) (*QuickAssignResult, error) {
	if input == nil {
		return nil, common.NewValidationError("request", "is required")
	}
	var result *QuickAssignResult
	err := s.mutate(ctx, "quick_assign", func(state *models.State) error {
		lot, ok := state.Lot(input.LotID)
		if !ok {
			return common.NewValidationError("lotId", "lot %q does not exist", input.LotID)
		}
		order, ok := state.Order(input.SalesOrderID)
		if !ok {
			return common.NewValidationError("salesOrderId", "sales order %q does not exist", input.SalesOrderID)
		}
		line, ok := order.Line(input.OrderLineID)
		if !ok {
			return common.NewValidationError("orderLineId", "line %q is not on order %s", input.OrderLineID, order.ID)
		}
		if input.Cases <= 0 {
			return common.NewValidationError("cases", "must be positive")
		}
		if input.Cases > lot.CasesAvailable {
			return common.NewValidationError("cases", "lot %s has only %d cases available", lot.PO, lot.CasesAvailable)
		}

		remaining := models.RemainingForLine(order.ID, *line, state.Assignments)
		a, err := s.createInState(state, &CreateAssignmentInput{
			Type:         models.AssignmentTypeOrder,
			SalesOrderID: order.ID,
			Items:        []AllocationRequest{{LotID: lot.ID, Cases: input.Cases}},
		})
		if err != nil {
			return err
		}
		result = &QuickAssignResult{
			Assignment:    a.Clone(),
			Remaining:     models.RemainingForLine(order.ID, *line, state.Assignments),
			OverAllocated: input.Cases > remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.OverAllocated {
		s.logger.WithFields(logrus.Fields{
			"assignment_id":  result.Assignment.ID,
			"sales_order_id": input.SalesOrderID,
			"order_line_id":  input.OrderLineID,
			"cases":          input.Cases,
		}).Warn("allocation exceeds what the order line still needs")
	}
	return result, nil
}

func (s *ledgerService) RemainingForLine(ctx context.Context, orderID, lineID string) (int, error) {
	remaining := 0
	err := s.store.View(ctx, func(state *models.State) error {
		order, ok := state.Order(orderID)
		if !ok {
			return common.NewNotFoundError("sales order", orderID)
		}
		line, ok := order.Line(lineID)
		if !ok {
			return common.NewNotFoundError("order line", lineID)
		}
		remaining = models.RemainingForLine(order.ID, *line, state.Assignments)
		return nil
	})
	return remaining, err
}

func (s *ledgerService) SuggestLot(ctx context.Context, orderID, lineID string) (*LotSuggestion, error) {
	var suggestion *LotSuggestion
	err := s.store.View(ctx, func(state *models.State) error {
		order, ok := state.Order(orderID)
		if !ok {
			return common.NewNotFoundError("sales order", orderID)
		}
		line, ok := order.Line(lineID)
		if !ok {
			return common.NewNotFoundError("order line", lineID)
		}

		var best *models.InventoryLot
		for _, lot := range state.Inventory {
			if lot.Material != line.Material || lot.CasesAvailable <= 0 {
				continue
			}
			if best == nil || etaBefore(lot.ETA, best.ETA) {
				best = lot
			}
		}
		if best == nil {
			return common.NewNotFoundError("lot with stock of material", line.Material)
		}

		remaining := models.RemainingForLine(order.ID, *line, state.Assignments)
		suggestion = &LotSuggestion{
			Lot:       best.Clone(),
			Cases:     min(best.CasesAvailable, remaining),
			Remaining: remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return suggestion, nil
}

// etaBefore orders ISO dates ascending with missing dates last
func etaBefore(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return false
	case b == "":
		return true
	}
	return a < b
}

func (s *ledgerService) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	var found *models.Assignment
	err := s.store.View(ctx, func(state *models.State) error {
		a, _, ok := state.Assignment(id)
		if !ok {
			return common.NewNotFoundError("assignment", id)
		}
		found = a.Clone()
		return nil
	})
	return found, err
}

func (s *ledgerService) ListAssignments(ctx context.Context, filter *models.AssignmentFilter) ([]*models.Assignment, error) {
	var out []*models.Assignment
	err := s.store.View(ctx, func(state *models.State) error {
		out = make([]*models.Assignment, 0, len(state.Assignments))
		for _, a := range state.Assignments {
			if a.Matches(filter) {
				out = append(out, a.Clone())
			}
		}
		return nil
	})
	return out, err
}
