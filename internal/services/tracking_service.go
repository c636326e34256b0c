package services

import (
	"context"
	"strings"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	TrackingViewOrder = "order"
	TrackingViewLot   = "lot"
)

type StageView struct {
	Status models.TrackingStatus `json:"status"`
	Label  string                `json:"label"`
}

type LotProgress struct {
	Lot            *models.InventoryLot `json:"lot"`
	PipelineIndex  int                  `json:"pipelineIndex"`
	StatusLabel    string               `json:"statusLabel"`
	CasesAssigned  int                  `json:"casesAssigned"`
	PoundsAssigned decimal.Decimal      `json:"poundsAssigned"`
}

// TrackingView is what the public tracking page renders for a token
type TrackingView struct {
	Kind           string               `json:"kind"`
	Token          string               `json:"token"`
	Stages         []StageView          `json:"stages"`
	PipelineIndex  int                  `json:"pipelineIndex"`
	StatusLabel    string               `json:"statusLabel"`
	Order          *models.SalesOrder   `json:"order,omitempty"`
	Lots           []LotProgress        `json:"lots"`
	Assignments    []*models.Assignment `json:"assignments"`
	CasesAssigned  int                  `json:"casesAssigned"`
	PoundsAssigned decimal.Decimal      `json:"poundsAssigned"`
}

type TrackingService interface {
	ResolveTracking(ctx context.Context, token string) (*TrackingView, error)
}

type trackingService struct {
	store     repositories.StateStore
	snapshots SnapshotService
	logger    logrus.FieldLogger
}

func NewTrackingService(store repositories.StateStore, snapshots SnapshotService, logger logrus.FieldLogger) TrackingService {
	return &trackingService{store: store, snapshots: snapshots, logger: logger}
}

// ResolveTracking looks the token up locally first and then in the published snapshots.
// Anything that does not resolve to a lot is reported as not found.
func (s *trackingService) ResolveTracking(ctx context.Context, token string) (*TrackingView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.NewNotFoundError("tracking", token)
	}

	var view *TrackingView
	err := s.store.View(ctx, func(state *models.State) error {
		if _, ok := state.LotByToken(token); ok {
			view = buildTrackingView(token, state.Snapshot())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if view != nil {
		return view, nil
	}

	if s.snapshots == nil {
		return nil, common.NewNotFoundError("tracking", token)
	}
	raw, err := s.snapshots.Fetch(ctx, token)
	if err != nil {
		if !common.IsNotFoundError(err) {
			s.logger.WithField("token", token).WithError(err).Warn("tracking snapshot fetch failed")
		}
		return nil, common.NewNotFoundError("tracking", token)
	}
	snapshot, err := raw.Decode()
	if err != nil {
		s.logger.WithField("token", token).WithError(err).Warn("published snapshot does not decode")
		return nil, common.NewNotFoundError("tracking", token)
	}
	if _, ok := snapshot.LotByToken(token); !ok {
		return nil, common.NewNotFoundError("tracking", token)
	}
	return buildTrackingView(token, snapshot), nil
}

// buildTrackingView expects snapshot to contain the lot carrying token
func buildTrackingView(token string, snapshot *models.Snapshot) *TrackingView {
	lot, _ := snapshot.LotByToken(token)

	var related []*models.Assignment
	for _, a := range snapshot.Assignments {
		if a.References(lot.ID) {
			related = append(related, a)
		}
	}

	linkedOrderID := ""
	for _, a := range related {
		if a.SalesOrderID != "" {
			linkedOrderID = a.SalesOrderID
			break
		}
	}
	if linkedOrderID != "" {
		for _, order := range snapshot.SalesOrders {
			if order.ID == linkedOrderID {
				return orderView(token, order, snapshot)
			}
		}
	}
	return lotView(token, lot, related, snapshot)
}

func orderView(token string, order *models.SalesOrder, snapshot *models.Snapshot) *TrackingView {
	view := newTrackingView(TrackingViewOrder, token)
	view.Order = order

	lotsByID := make(map[string]*models.InventoryLot, len(snapshot.Inventory))
	for _, lot := range snapshot.Inventory {
		lotsByID[lot.ID] = lot
	}

	cases := make(map[string]int)
	var lotOrder []string
	for _, a := range snapshot.Assignments {
		if a.SalesOrderID != order.ID || !a.IsActive() {
			continue
		}
		view.Assignments = append(view.Assignments, a)
		for _, item := range a.Items {
			if _, seen := cases[item.LotID]; !seen {
				lotOrder = append(lotOrder, item.LotID)
			}
			cases[item.LotID] += item.Cases
		}
	}

	stage := -1
	for _, lotID := range lotOrder {
		lot, ok := lotsByID[lotID]
		if !ok {
			continue
		}
		progress := newLotProgress(lot, cases[lotID])
		view.Lots = append(view.Lots, progress)
		view.CasesAssigned += progress.CasesAssigned
		view.PoundsAssigned = view.PoundsAssigned.Add(progress.PoundsAssigned)
		if stage < 0 || progress.PipelineIndex < stage {
			stage = progress.PipelineIndex
		}
	}
	if stage < 0 {
		stage = models.StageIndex(models.StatusConfirmed)
	}
	view.PipelineIndex = stage
	view.StatusLabel = models.StatusLabel(models.PipelineStages[stage])
	return view
}

func lotView(token string, lot *models.InventoryLot, related []*models.Assignment, snapshot *models.Snapshot) *TrackingView {
	view := newTrackingView(TrackingViewLot, token)

	assigned := 0
	for _, a := range related {
		view.Assignments = append(view.Assignments, a)
		if a.IsActive() {
			assigned += a.CasesForLot(lot.ID)
		}
	}
	if lot.CustomerPO != "" {
		for _, order := range snapshot.SalesOrders {
			if order.CustomerPO == lot.CustomerPO {
				view.Order = order
				break
			}
		}
	}

	progress := newLotProgress(lot, assigned)
	view.Lots = append(view.Lots, progress)
	view.PipelineIndex = progress.PipelineIndex
	view.StatusLabel = progress.StatusLabel
	view.CasesAssigned = assigned
	view.PoundsAssigned = progress.PoundsAssigned
	return view
}

func newTrackingView(kind, token string) *TrackingView {
	stages := make([]StageView, 0, len(models.PipelineStages))
	for _, stage := range models.PipelineStages {
		stages = append(stages, StageView{Status: stage, Label: models.StatusLabel(stage)})
	}
	return &TrackingView{
		Kind:           kind,
		Token:          token,
		Stages:         stages,
		Lots:           []LotProgress{},
		Assignments:    []*models.Assignment{},
		PoundsAssigned: decimal.Zero,
	}
}

func newLotProgress(lot *models.InventoryLot, cases int) LotProgress {
	return LotProgress{
		Lot:            lot,
		PipelineIndex:  lot.PipelineIndex(),
		StatusLabel:    models.StatusLabel(lot.Status),
		CasesAssigned:  cases,
		PoundsAssigned: models.PoundsFor(cases, lot.CaseFormatLb),
	}
}
