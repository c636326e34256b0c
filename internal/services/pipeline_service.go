package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/metrics"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/sirupsen/logrus"
)

const PolicyForward = "forward"

// TransitionPolicy decides whether a lot may move to the next status
type TransitionPolicy interface {
	Allow(lot *models.InventoryLot, next models.TrackingStatus) error
}

// UnguardedPolicy accepts any transition, including backwards moves and unknown statuses
type UnguardedPolicy struct{}

func (UnguardedPolicy) Allow(lot *models.InventoryLot, next models.TrackingStatus) error {
	return nil
}

// ForwardOnlyPolicy rejects moves to an earlier pipeline stage and statuses it does not know
type ForwardOnlyPolicy struct{}

func (ForwardOnlyPolicy) Allow(lot *models.InventoryLot, next models.TrackingStatus) error {
	if !models.IsKnownStatus(next) {
		return common.NewValidationError("status", "unknown status %q", next)
	}
	current := lot.PipelineIndex()
	if models.PipelineIndex(next, nil) < current {
		return common.NewInvalidStateError("lot", lot.ID, string(lot.Status),
			"cannot move back to "+string(next))
	}
	return nil
}

// PolicyByName maps the configured policy name to a policy; anything but "forward" is unguarded
func PolicyByName(name string) TransitionPolicy {
	if strings.EqualFold(strings.TrimSpace(name), PolicyForward) {
		return ForwardOnlyPolicy{}
	}
	return UnguardedPolicy{}
}

// StageGroup is one column of the operations inbox
type StageGroup struct {
	Stage       models.TrackingStatus `json:"stage"`
	Label       string                `json:"label"`
	Assignments []*models.Assignment  `json:"assignments"`
}

// ActivityEntry is one lot in the live AWB feed
type ActivityEntry struct {
	LotID       string                `json:"lotId"`
	AWB         *string               `json:"awb"`
	PO          string                `json:"po"`
	Status      models.TrackingStatus `json:"status"`
	Stage       int                   `json:"stage"`
	ETA         string                `json:"eta,omitempty"`
	Customer    string                `json:"customer"`
	OrderRef    string                `json:"orderRef,omitempty"`
	LastUpdated *time.Time            `json:"lastUpdated"`
}

// PipelineService is the only writer of lot status and status history
type PipelineService interface {
	SetStatus(ctx context.Context, lotID string, status models.TrackingStatus) (*models.InventoryLot, error)
	AssignmentStage(a *models.Assignment, lots []*models.InventoryLot) int
	OpsInbox(ctx context.Context) ([]StageGroup, error)
	// ActivityFeed lists lots by their latest status change, newest first. An empty
	// warehouse means every warehouse.
	ActivityFeed(ctx context.Context, warehouse string) ([]ActivityEntry, error)
}

type pipelineService struct {
	store   repositories.StateStore
	policy  TransitionPolicy
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewPipelineService(store repositories.StateStore, policy TransitionPolicy, m *metrics.Metrics, logger logrus.FieldLogger) PipelineService {
	if policy == nil {
		policy = UnguardedPolicy{}
	}
	return &pipelineService{
		store:   store,
		policy:  policy,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *pipelineService) SetStatus(ctx context.Context, lotID string, status models.TrackingStatus) (*models.InventoryLot, error) {
	var updated *models.InventoryLot
	err := s.store.Update(ctx, func(state *models.State) error {
		lot, ok := state.Lot(lotID)
		if !ok {
			return common.NewNotFoundError("lot", lotID)
		}
		if err := applyStatus(lot, status, s.policy, s.now()); err != nil {
			return err
		}
		updated = lot.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStatusChange(string(updated.Status))
	s.logger.WithFields(logrus.Fields{
		"lot_id": lotID,
		"po":     updated.PO,
		"status": updated.Status,
	}).Info("lot status changed")
	return updated, nil
}

func normalizeStatus(status models.TrackingStatus) models.TrackingStatus {
	return models.TrackingStatus(strings.ToUpper(strings.TrimSpace(string(status))))
}

// applyStatus appends to the history and sets the status. History is never rewritten.
func applyStatus(lot *models.InventoryLot, status models.TrackingStatus, policy TransitionPolicy, at time.Time) error {
	status = normalizeStatus(status)
	if status == "" {
		return common.NewValidationError("status", "is required")
	}
	if err := policy.Allow(lot, status); err != nil {
		return err
	}
	lot.StatusHistory = append(lot.StatusHistory, models.StatusEntry{At: at, Status: status})
	lot.Status = status
	return nil
}

// AssignmentStage returns the earliest pipeline position across the lots an assignment draws
// from, so an order only moves forward once all of its lots have.
func (s *pipelineService) AssignmentStage(a *models.Assignment, lots []*models.InventoryLot) int {
	return assignmentStage(a, lots)
}

func assignmentStage(a *models.Assignment, lots []*models.InventoryLot) int {
	byID := make(map[string]*models.InventoryLot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}
	stage := -1
	for _, item := range a.Items {
		lot, ok := byID[item.LotID]
		if !ok {
			continue
		}
		if idx := lot.PipelineIndex(); stage < 0 || idx < stage {
			stage = idx
		}
	}
	if stage < 0 {
		return models.StageIndex(models.StatusConfirmed)
	}
	return stage
}

func (s *pipelineService) OpsInbox(ctx context.Context) ([]StageGroup, error) {
	groups := make([]StageGroup, len(models.PipelineStages))
	for i, stage := range models.PipelineStages {
		groups[i] = StageGroup{Stage: stage, Label: models.StatusLabel(stage), Assignments: []*models.Assignment{}}
	}
	err := s.store.View(ctx, func(state *models.State) error {
		for _, a := range state.Assignments {
			if !a.IsActive() {
				continue
			}
			idx := assignmentStage(a, state.Inventory)
			groups[idx].Assignments = append(groups[idx].Assignments, a.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *pipelineService) ActivityFeed(ctx context.Context, warehouse string) ([]ActivityEntry, error) {
	warehouse = strings.TrimSpace(warehouse)
	var feed []ActivityEntry
	err := s.store.View(ctx, func(state *models.State) error {
		feed = make([]ActivityEntry, 0, len(state.Inventory))
		for _, lot := range state.Inventory {
			if warehouse != "" && lot.Warehouse != warehouse {
				continue
			}
			entry := ActivityEntry{
				LotID:    lot.ID,
				AWB:      lot.AWB,
				PO:       lot.PO,
				Status:   lot.Status,
				Stage:    lot.PipelineIndex(),
				ETA:      lot.ETA,
				Customer: lot.Customer,
			}
			if order := linkedOrder(state, lot.ID); order != nil {
				entry.OrderRef = order.DemandID
				if name := strings.TrimSpace(order.CustomerName); name != "" {
					entry.Customer = name
				} else if shipTo := strings.TrimSpace(order.ShipTo); shipTo != "" {
					entry.Customer = shipTo
				}
			}
			if n := len(lot.StatusHistory); n > 0 {
				at := lot.StatusHistory[n-1].At
				entry.LastUpdated = &at
			}
			feed = append(feed, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(feed, func(i, j int) bool {
		a, b := feed[i].LastUpdated, feed[j].LastUpdated
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	return feed, nil
}

// linkedOrder is the order of the first assignment drawing from the lot
func linkedOrder(state *models.State, lotID string) *models.SalesOrder {
	for _, a := range state.Assignments {
		if a.SalesOrderID == "" || !a.References(lotID) {
			continue
		}
		if order, ok := state.Order(a.SalesOrderID); ok {
			return order
		}
		return nil
	}
	return nil
}
