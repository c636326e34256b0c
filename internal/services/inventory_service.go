package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LotInput carries the operator-editable fields of a lot
type LotInput struct {
	CustomID       string                `json:"customId"`
	PO             string                `json:"po" validate:"required"`
	CustomerPO     string                `json:"customerPO"`
	AWB            *string               `json:"awb"`
	Customer       string                `json:"customer"`
	Warehouse      string                `json:"warehouse"`
	Location       string                `json:"location"`
	Plant          string                `json:"plant"`
	ProductionDate string                `json:"productionDate"`
	ETA            string                `json:"eta"`
	Material       string                `json:"material"`
	Description    string                `json:"description"`
	Product        string                `json:"product"`
	Sector         string                `json:"sector"`
	Trim           string                `json:"trim"`
	Size           string                `json:"size"`
	Packing        string                `json:"packing"`
	CaseFormatLb   float64               `json:"caseFormatLb" validate:"gte=0"`
	CasesOrdered   int                   `json:"casesOrdered" validate:"gte=0"`
	CasesAvailable *int                  `json:"casesAvailable" validate:"omitempty,gte=0"`
	Status         models.TrackingStatus `json:"status"`
}

type InventoryService interface {
	CreateLot(ctx context.Context, input *LotInput) (*models.InventoryLot, error)
	UpdateLot(ctx context.Context, id string, input *LotInput) (*models.InventoryLot, error)
	DeleteLot(ctx context.Context, id string) error
	GetLot(ctx context.Context, id string) (*models.InventoryLot, error)
	GetLotByToken(ctx context.Context, token string) (*models.InventoryLot, error)
	ListLots(ctx context.Context, filter *models.InventorySearchFilter) ([]*models.InventoryLot, error)
	ArchiveTracking(ctx context.Context, id string) error
	TrackingWorklist(ctx context.Context) ([]*models.InventoryLot, error)
	TrackingLink(lot *models.InventoryLot) string
}

type inventoryService struct {
	store         repositories.StateStore
	policy        TransitionPolicy
	publicBaseURL string
	logger        logrus.FieldLogger
	now           func() time.Time
}

func NewInventoryService(store repositories.StateStore, policy TransitionPolicy, publicBaseURL string, logger logrus.FieldLogger) InventoryService {
	if policy == nil {
		policy = UnguardedPolicy{}
	}
	return &inventoryService{
		store:         store,
		policy:        policy,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
		now:           time.Now,
	}
}

func validateLotInput(input *LotInput) error {
	if input == nil {
		return common.NewValidationError("request", "is required")
	}
	if err := common.ValidateRequiredString(input.PO, "po"); err != nil {
		return err
	}
	if input.CasesOrdered < 0 {
		return common.NewValidationError("casesOrdered", "cannot be negative")
	}
	if input.CasesAvailable != nil && *input.CasesAvailable < 0 {
		return common.NewValidationError("casesAvailable", "cannot be negative")
	}
	if input.CaseFormatLb < 0 {
		return common.NewValidationError("caseFormatLb", "cannot be negative")
	}
	return nil
}

// applyDescriptors copies the descriptive fields; stock and status are left alone
func applyDescriptors(lot *models.InventoryLot, input *LotInput) {
	lot.CustomID = strings.TrimSpace(input.CustomID)
	lot.PO = strings.TrimSpace(input.PO)
	lot.CustomerPO = strings.TrimSpace(input.CustomerPO)
	if input.AWB != nil {
		lot.AWB = common.StringPtr(*input.AWB)
	} else {
		lot.AWB = nil
	}
	lot.Customer = strings.TrimSpace(input.Customer)
	lot.Warehouse = strings.TrimSpace(input.Warehouse)
	lot.Location = strings.TrimSpace(input.Location)
	lot.Plant = input.Plant
	lot.ProductionDate = input.ProductionDate
	lot.ETA = input.ETA
	lot.Material = strings.TrimSpace(input.Material)
	lot.Description = input.Description
	lot.Product = input.Product
	lot.Sector = input.Sector
	lot.Trim = input.Trim
	lot.Size = input.Size
	lot.Packing = input.Packing
	lot.CasesOrdered = input.CasesOrdered
	lot.CaseFormatLb = input.CaseFormatLb
	if lot.CaseFormatLb <= 0 {
		lot.CaseFormatLb = models.FormatFromDescription(lot.Description)
	}
}

func (s *inventoryService) CreateLot(ctx context.Context, input *LotInput) (*models.InventoryLot, error) {
	if err := validateLotInput(input); err != nil {
		return nil, err
	}
	if input.CasesAvailable != nil && *input.CasesAvailable > input.CasesOrdered {
		return nil, common.NewValidationError("casesAvailable", "cannot exceed casesOrdered (%d)", input.CasesOrdered)
	}

	lot := &models.InventoryLot{
		ID:            uuid.NewString(),
		TrackingToken: uuid.NewString(),
	}
	status := normalizeStatus(input.Status)
	if status == "" {
		status = models.StatusConfirmed
	}
	if err := applyStatus(lot, status, s.policy, s.now()); err != nil {
		return nil, err
	}
	applyDescriptors(lot, input)
	lot.CasesAvailable = lot.CasesOrdered
	if input.CasesAvailable != nil {
		lot.CasesAvailable = *input.CasesAvailable
	}
	lot.Active = lot.CasesAvailable > 0

	err := s.store.Update(ctx, func(state *models.State) error {
		state.Inventory = append(state.Inventory, lot.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"lot_id": lot.ID, "po": lot.PO, "cases": lot.CasesAvailable}).Info("lot created")
	return lot, nil
}

// UpdateLot rewrites the descriptors. A changed status goes through the pipeline so the
// history keeps growing. A new casesOrdered shifts casesAvailable by the same delta and may
// not drop below what ACTIVE assignments hold.
func (s *inventoryService) UpdateLot(ctx context.Context, id string, input *LotInput) (*models.InventoryLot, error) {
	if err := validateLotInput(input); err != nil {
		return nil, err
	}
	var updated *models.InventoryLot
	err := s.store.Update(ctx, func(state *models.State) error {
		lot, ok := state.Lot(id)
		if !ok {
			return common.NewNotFoundError("lot", id)
		}
		if delta := input.CasesOrdered - lot.CasesOrdered; delta != 0 {
			held := heldByActive(state, id)
			if input.CasesOrdered < held {
				return common.NewInvalidStateError("lot", id, "ALLOCATED",
					fmt.Sprintf("casesOrdered %d is below the %d cases held by active assignments", input.CasesOrdered, held))
			}
			if lot.CasesAvailable+delta < 0 {
				return common.NewValidationError("casesOrdered", "would leave %d cases available", lot.CasesAvailable+delta)
			}
			adjustStock(lot, delta)
		}
		applyDescriptors(lot, input)
		if status := normalizeStatus(input.Status); status != "" && status != lot.Status {
			if err := applyStatus(lot, status, s.policy, s.now()); err != nil {
				return err
			}
		}
		updated = lot.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func heldByActive(state *models.State, lotID string) int {
	held := 0
	for _, a := range state.Assignments {
		if a.IsActive() {
			held += a.CasesForLot(lotID)
		}
	}
	return held
}

func (s *inventoryService) DeleteLot(ctx context.Context, id string) error {
	return s.store.Update(ctx, func(state *models.State) error {
		idx := -1
		for i, lot := range state.Inventory {
			if lot.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return common.NewNotFoundError("lot", id)
		}
		for _, a := range state.Assignments {
			if a.IsActive() && a.References(id) {
				return common.NewInvalidStateError("lot", id, "ALLOCATED",
					fmt.Sprintf("active assignment %s still holds cases from this lot", a.ID))
			}
		}
		state.Inventory = append(state.Inventory[:idx], state.Inventory[idx+1:]...)
		archived := state.ArchivedLots[:0]
		for _, lotID := range state.ArchivedLots {
			if lotID != id {
				archived = append(archived, lotID)
			}
		}
		state.ArchivedLots = archived
		return nil
	})
}

func (s *inventoryService) GetLot(ctx context.Context, id string) (*models.InventoryLot, error) {
	var found *models.InventoryLot
	err := s.store.View(ctx, func(state *models.State) error {
		lot, ok := state.Lot(id)
		if !ok {
			return common.NewNotFoundError("lot", id)
		}
		found = lot.Clone()
		return nil
	})
	return found, err
}

func (s *inventoryService) GetLotByToken(ctx context.Context, token string) (*models.InventoryLot, error) {
	var found *models.InventoryLot
	err := s.store.View(ctx, func(state *models.State) error {
		lot, ok := state.LotByToken(token)
		if !ok {
			return common.NewNotFoundError("lot", token)
		}
		found = lot.Clone()
		return nil
	})
	return found, err
}

func (s *inventoryService) ListLots(ctx context.Context, filter *models.InventorySearchFilter) ([]*models.InventoryLot, error) {
	var out []*models.InventoryLot
	err := s.store.View(ctx, func(state *models.State) error {
		out = make([]*models.InventoryLot, 0, len(state.Inventory))
		for _, lot := range state.Inventory {
			if lot.Matches(filter) {
				out = append(out, lot.Clone())
			}
		}
		return nil
	})
	return out, err
}

// ArchiveTracking takes a delivered lot off the tracking worklist. Archiving twice is a no-op.
func (s *inventoryService) ArchiveTracking(ctx context.Context, id string) error {
	return s.store.Update(ctx, func(state *models.State) error {
		lot, ok := state.Lot(id)
		if !ok {
			return common.NewNotFoundError("lot", id)
		}
		if lot.Status != models.StatusDelivered {
			return common.NewInvalidStateError("lot", id, string(lot.Status), "only delivered lots can be archived")
		}
		if state.IsArchived(id) {
			return nil
		}
		state.ArchivedLots = append(state.ArchivedLots, id)
		return nil
	})
}

func (s *inventoryService) TrackingWorklist(ctx context.Context) ([]*models.InventoryLot, error) {
	var out []*models.InventoryLot
	err := s.store.View(ctx, func(state *models.State) error {
		out = make([]*models.InventoryLot, 0, len(state.Inventory))
		for _, lot := range state.Inventory {
			if !state.IsArchived(lot.ID) {
				out = append(out, lot.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (s *inventoryService) TrackingLink(lot *models.InventoryLot) string {
	if lot == nil || lot.TrackingToken == "" {
		return ""
	}
	return fmt.Sprintf("%s/track/%s", s.publicBaseURL, lot.TrackingToken)
}
