package services

import (
	"context"
	"strings"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type OrderLineInput struct {
	ID          string  `json:"id"`
	Material    string  `json:"material" validate:"required"`
	Description string  `json:"description"`
	Product     string  `json:"product"`
	Cases       int     `json:"cases" validate:"gt=0"`
	FormatLb    float64 `json:"formatLb" validate:"gte=0"`
}

type OrderInput struct {
	DemandID     string           `json:"demandId"`
	SalesRep     string           `json:"salesRep"`
	CustomerName string           `json:"customerName"`
	ShipTo       string           `json:"shipTo"`
	CustomerPO   string           `json:"customerPO"`
	PickUpDate   string           `json:"pickUpDate"`
	Incoterm     string           `json:"incoterm"`
	Truck        string           `json:"truck"`
	PortEntry    string           `json:"portEntry"`
	Week         string           `json:"week"`
	Brand        string           `json:"brand"`
	Progress     string           `json:"progress"`
	Lines        []OrderLineInput `json:"lines" validate:"required,min=1,dive"`
}

// LineRemaining shows how much of an order line is still unallocated
type LineRemaining struct {
	LineID    string `json:"lineId"`
	Material  string `json:"material"`
	Cases     int    `json:"cases"`
	Committed int    `json:"committed"`
	Remaining int    `json:"remaining"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, input *OrderInput) (*models.SalesOrder, error)
	UpdateOrder(ctx context.Context, id string, input *OrderInput) (*models.SalesOrder, error)
	DeleteOrder(ctx context.Context, id string) error
	GetOrder(ctx context.Context, id string) (*models.SalesOrder, error)
	ListOrders(ctx context.Context, filter *models.OrderSearchFilter) ([]*models.SalesOrder, error)
	OrderLineRemaining(ctx context.Context, id string) ([]LineRemaining, error)
}

type orderService struct {
	store  repositories.StateStore
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewOrderService(store repositories.StateStore, logger logrus.FieldLogger) OrderService {
	return &orderService{store: store, logger: logger, now: time.Now}
}

func validateOrderInput(input *OrderInput) error {
	if input == nil {
		return common.NewValidationError("request", "is required")
	}
	if strings.TrimSpace(input.CustomerName) == "" && strings.TrimSpace(input.ShipTo) == "" {
		return common.NewValidationError("customerName", "customer name or ship-to is required")
	}
	if len(input.Lines) == 0 {
		return common.NewValidationError("lines", "at least one line is required")
	}
	for _, line := range input.Lines {
		if err := common.ValidatePositiveInteger(line.Cases, "lines.cases", 1_000_000); err != nil {
			return err
		}
	}
	return common.ValidateDateFormat(input.PickUpDate, "pickUpDate")
}

func applyOrderInput(order *models.SalesOrder, input *OrderInput) {
	order.SalesRep = strings.TrimSpace(input.SalesRep)
	order.CustomerName = strings.TrimSpace(input.CustomerName)
	order.ShipTo = strings.TrimSpace(input.ShipTo)
	order.CustomerPO = strings.TrimSpace(input.CustomerPO)
	order.PickUpDate = input.PickUpDate
	order.Incoterm = input.Incoterm
	order.Truck = input.Truck
	order.PortEntry = input.PortEntry
	order.Week = input.Week
	order.Brand = input.Brand
	order.Progress = strings.ToUpper(strings.TrimSpace(input.Progress))
	order.Lines = make([]models.OrderLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		order.Lines = append(order.Lines, models.OrderLine{
			ID:          line.ID,
			Material:    strings.TrimSpace(line.Material),
			Description: line.Description,
			Product:     line.Product,
			Cases:       line.Cases,
			FormatLb:    line.FormatLb,
		})
	}
	models.NormalizeOrder(order)
}

func (s *orderService) CreateOrder(ctx context.Context, input *OrderInput) (*models.SalesOrder, error) {
	if err := validateOrderInput(input); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(input.DemandID)
	if id == "" {
		id = "DEM-" + strings.ToUpper(uuid.NewString()[:8])
	}

	now := s.now()
	order := &models.SalesOrder{ID: id, DemandID: id, CreatedAt: now, UpdatedAt: now}
	applyOrderInput(order, input)

	err := s.store.Update(ctx, func(state *models.State) error {
		if _, exists := state.Order(id); exists {
			return common.NewValidationError("demandId", "sales order %s already exists", id)
		}
		state.SalesOrders = append(state.SalesOrders, order.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"sales_order_id": id, "lines": len(order.Lines)}).Info("sales order created")
	return order, nil
}

// UpdateOrder replaces the header and all lines
func (s *orderService) UpdateOrder(ctx context.Context, id string, input *OrderInput) (*models.SalesOrder, error) {
	if err := validateOrderInput(input); err != nil {
		return nil, err
	}
	var updated *models.SalesOrder
	err := s.store.Update(ctx, func(state *models.State) error {
		order, ok := state.Order(id)
		if !ok {
			return common.NewNotFoundError("sales order", id)
		}
		applyOrderInput(order, input)
		order.UpdatedAt = s.now()
		updated = order.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteOrder removes the order only. Assignments keep their copy of the customer.
func (s *orderService) DeleteOrder(ctx context.Context, id string) error {
	return s.store.Update(ctx, func(state *models.State) error {
		for i, order := range state.SalesOrders {
			if order.ID == id {
				state.SalesOrders = append(state.SalesOrders[:i], state.SalesOrders[i+1:]...)
				return nil
			}
		}
		return common.NewNotFoundError("sales order", id)
	})
}

func (s *orderService) GetOrder(ctx context.Context, id string) (*models.SalesOrder, error) {
	var found *models.SalesOrder
	err := s.store.View(ctx, func(state *models.State) error {
		order, ok := state.Order(id)
		if !ok {
			return common.NewNotFoundError("sales order", id)
		}
		found = order.Clone()
		return nil
	})
	return found, err
}

func (s *orderService) ListOrders(ctx context.Context, filter *models.OrderSearchFilter) ([]*models.SalesOrder, error) {
	var out []*models.SalesOrder
	err := s.store.View(ctx, func(state *models.State) error {
		out = make([]*models.SalesOrder, 0, len(state.SalesOrders))
		for _, order := range state.SalesOrders {
			if order.Matches(filter) {
				out = append(out, order.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (s *orderService) OrderLineRemaining(ctx context.Context, id string) ([]LineRemaining, error) {
	var out []LineRemaining
	err := s.store.View(ctx, func(state *models.State) error {
		order, ok := state.Order(id)
		if !ok {
			return common.NewNotFoundError("sales order", id)
		}
		out = make([]LineRemaining, 0, len(order.Lines))
		for _, line := range order.Lines {
			out = append(out, LineRemaining{
				LineID:    line.ID,
				Material:  line.Material,
				Cases:     line.Cases,
				Committed: models.CommittedForLine(order.ID, line, state.Assignments),
				Remaining: models.RemainingForLine(order.ID, line, state.Assignments),
			})
		}
		return nil
	})
	return out, err
}
