package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LedgerServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   repositories.StateStore
	service LedgerService
}

func (suite *LedgerServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	lotA := lotFixture("lot-a", 175)
	lotB := lotFixture("lot-b", 40)
	empty := lotFixture("lot-empty", 0)
	order := orderFixture("DEM-1",
		models.OrderLine{ID: "line-1", Material: lotA.Material, Cases: 100, FormatLb: 35},
		models.OrderLine{ID: "line-2", Material: lotB.Material, Cases: 10, FormatLb: 35},
	)
	suite.store = newTestStore(suite.T(), []*models.InventoryLot{lotA, lotB, empty}, []*models.SalesOrder{order})
	svc := NewLedgerService(suite.store, nil, quietLogger()).(*ledgerService)
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) }
	suite.service = svc
}

func (suite *LedgerServiceTestSuite) orderInput(items ...AllocationRequest) *CreateAssignmentInput {
	return &CreateAssignmentInput{Type: models.AssignmentTypeOrder, SalesOrderID: "DEM-1", Items: items}
}

func (suite *LedgerServiceTestSuite) cases(lotID string) int {
	return lotState(suite.T(), suite.store, lotID).CasesAvailable
}

func (suite *LedgerServiceTestSuite) TestCreateVoidReactivateRoundTrip() {
	a, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 120}))
	suite.Require().NoError(err)
	suite.Equal("ASG-0001", a.ID)
	suite.Equal("2024-05-02", a.Date)
	suite.Equal(models.AssignmentStateActive, a.State)
	suite.Equal(55, suite.cases("lot-a"))

	voided, err := suite.service.VoidAssignment(suite.ctx, a.ID)
	suite.Require().NoError(err)
	suite.Equal(models.AssignmentStateVoid, voided.State)
	suite.Equal(175, suite.cases("lot-a"))

	reactivated, err := suite.service.ReactivateAssignment(suite.ctx, a.ID)
	suite.Require().NoError(err)
	suite.Equal(models.AssignmentStateActive, reactivated.State)
	suite.Equal(55, suite.cases("lot-a"))
}

func (suite *LedgerServiceTestSuite) TestExhaustedLotComesBackOnVoid() {
	a, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-b", Cases: 40}))
	suite.Require().NoError(err)

	lot := lotState(suite.T(), suite.store, "lot-b")
	suite.Equal(0, lot.CasesAvailable)
	suite.False(lot.Active)

	_, err = suite.service.VoidAssignment(suite.ctx, a.ID)
	suite.Require().NoError(err)
	lot = lotState(suite.T(), suite.store, "lot-b")
	suite.Equal(40, lot.CasesAvailable)
	suite.True(lot.Active)

	_, err = suite.service.ReactivateAssignment(suite.ctx, a.ID)
	suite.Require().NoError(err)
	suite.False(lotState(suite.T(), suite.store, "lot-b").Active)
}

func (suite *LedgerServiceTestSuite) TestCreateIsAllOrNothing() {
	_, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(
		AllocationRequest{LotID: "lot-a", Cases: 10},
		AllocationRequest{LotID: "lot-b", Cases: 41},
	))
	suite.Require().Error(err)

	var stockErr *common.InsufficientStockError
	suite.Require().True(errors.As(err, &stockErr))
	suite.Equal("lot-b", stockErr.LotID)
	suite.Equal("PO-lot-b", stockErr.PO)
	suite.Equal(41, stockErr.Requested)
	suite.Equal(40, stockErr.Available)

	suite.Equal(175, suite.cases("lot-a"))
	suite.Equal(40, suite.cases("lot-b"))
	list, err := suite.service.ListAssignments(suite.ctx, nil)
	suite.Require().NoError(err)
	suite.Empty(list)
}

func (suite *LedgerServiceTestSuite) TestItemsOnSameLotAreSummed() {
	_, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(
		AllocationRequest{LotID: "lot-b", Cases: 30},
		AllocationRequest{LotID: "lot-b", Cases: 20},
	))
	suite.True(common.IsInsufficientStockError(err))
	suite.Equal(40, suite.cases("lot-b"))

	a, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(
		AllocationRequest{LotID: "lot-b", Cases: 25},
		AllocationRequest{LotID: "lot-b", Cases: 15},
	))
	suite.Require().NoError(err)
	suite.Len(a.Items, 2)
	suite.Equal(0, suite.cases("lot-b"))

	_, err = suite.service.VoidAssignment(suite.ctx, a.ID)
	suite.Require().NoError(err)
	suite.Equal(40, suite.cases("lot-b"))
}

func (suite *LedgerServiceTestSuite) TestReactivateWithoutStockStaysVoid() {
	first, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-b", Cases: 30}))
	suite.Require().NoError(err)
	_, err = suite.service.VoidAssignment(suite.ctx, first.ID)
	suite.Require().NoError(err)

	_, err = suite.service.CreateAssignment(suite.ctx, &CreateAssignmentInput{
		Type:       models.AssignmentTypeSpot,
		SpotClient: "Dock buyer",
		Items:      []AllocationRequest{{LotID: "lot-b", Cases: 20}},
	})
	suite.Require().NoError(err)

	_, err = suite.service.ReactivateAssignment(suite.ctx, first.ID)
	suite.True(common.IsInsufficientStockError(err))

	stored, err := suite.service.GetAssignment(suite.ctx, first.ID)
	suite.Require().NoError(err)
	suite.Equal(models.AssignmentStateVoid, stored.State)
	suite.Equal(20, suite.cases("lot-b"))
}

func (suite *LedgerServiceTestSuite) TestInvalidStateTransitions() {
	a, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 5}))
	suite.Require().NoError(err)

	_, err = suite.service.ReactivateAssignment(suite.ctx, a.ID)
	suite.True(common.IsInvalidStateError(err))

	_, err = suite.service.VoidAssignment(suite.ctx, a.ID)
	suite.Require().NoError(err)
	_, err = suite.service.VoidAssignment(suite.ctx, a.ID)
	suite.True(common.IsInvalidStateError(err))
	suite.Equal(175, suite.cases("lot-a"))

	_, err = suite.service.VoidAssignment(suite.ctx, "ASG-9999")
	suite.True(common.IsNotFoundError(err))
}

func (suite *LedgerServiceTestSuite) TestDeleteReturnsStockOnlyWhenActive() {
	active, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 50}))
	suite.Require().NoError(err)
	voided, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 25}))
	suite.Require().NoError(err)
	_, err = suite.service.VoidAssignment(suite.ctx, voided.ID)
	suite.Require().NoError(err)
	suite.Equal(125, suite.cases("lot-a"))

	suite.Require().NoError(suite.service.DeleteAssignment(suite.ctx, voided.ID))
	suite.Equal(125, suite.cases("lot-a"))

	suite.Require().NoError(suite.service.DeleteAssignment(suite.ctx, active.ID))
	suite.Equal(175, suite.cases("lot-a"))

	suite.True(common.IsNotFoundError(suite.service.DeleteAssignment(suite.ctx, active.ID)))
}

func (suite *LedgerServiceTestSuite) TestIDsAreNotReusedAfterDelete() {
	first, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 1}))
	suite.Require().NoError(err)
	second, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 1}))
	suite.Require().NoError(err)
	suite.Equal("ASG-0002", second.ID)

	suite.Require().NoError(suite.service.DeleteAssignment(suite.ctx, first.ID))
	third, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 1}))
	suite.Require().NoError(err)
	suite.Equal("ASG-0003", third.ID)
}

func (suite *LedgerServiceTestSuite) TestCreateValidation() {
	tests := []struct {
		name  string
		input *CreateAssignmentInput
	}{
		{"nil input", nil},
		{"no items", suite.orderInput()},
		{"zero cases", suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 0})},
		{"negative cases", suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: -3})},
		{"blank lot", suite.orderInput(AllocationRequest{LotID: " ", Cases: 3})},
		{"unknown lot", suite.orderInput(AllocationRequest{LotID: "nope", Cases: 3})},
		{"unknown order", &CreateAssignmentInput{Type: models.AssignmentTypeOrder, SalesOrderID: "DEM-404",
			Items: []AllocationRequest{{LotID: "lot-a", Cases: 1}}}},
		{"spot without client", &CreateAssignmentInput{Type: models.AssignmentTypeSpot,
			Items: []AllocationRequest{{LotID: "lot-a", Cases: 1}}}},
		{"bad type", &CreateAssignmentInput{Type: "GIFT", Items: []AllocationRequest{{LotID: "lot-a", Cases: 1}}}},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := suite.service.CreateAssignment(suite.ctx, tt.input)
			suite.True(common.IsValidationError(err), "got %v", err)
		})
	}
	suite.Equal(175, suite.cases("lot-a"))
}

func (suite *LedgerServiceTestSuite) TestCustomerResolution() {
	a, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 1}))
	suite.Require().NoError(err)
	suite.Equal("Blue Harbor Miami DC", a.Customer)
	suite.Equal("DEM-1", a.SalesOrderID)

	spot, err := suite.service.CreateAssignment(suite.ctx, &CreateAssignmentInput{
		Type:       models.AssignmentTypeSpot,
		SpotClient: "  Dock buyer ",
		SpotRef:    "INV-77",
		Date:       "2024-04-30",
		Items:      []AllocationRequest{{LotID: "lot-a", Cases: 1}},
	})
	suite.Require().NoError(err)
	suite.Equal("Dock buyer", spot.Customer)
	suite.Equal("INV-77", spot.SpotRef)
	suite.Equal("2024-04-30", spot.Date)
	suite.Empty(spot.SalesOrderID)
}

func (suite *LedgerServiceTestSuite) TestQuickAssign() {
	result, err := suite.service.QuickAssign(suite.ctx, &QuickAssignInput{
		LotID: "lot-a", SalesOrderID: "DEM-1", OrderLineID: "line-1", Cases: 60,
	})
	suite.Require().NoError(err)
	suite.Equal(40, result.Remaining)
	suite.False(result.OverAllocated)
	suite.Equal(models.AssignmentTypeOrder, result.Assignment.Type)
	suite.Equal(115, suite.cases("lot-a"))

	result, err = suite.service.QuickAssign(suite.ctx, &QuickAssignInput{
		LotID: "lot-a", SalesOrderID: "DEM-1", OrderLineID: "line-1", Cases: 50,
	})
	suite.Require().NoError(err)
	suite.Equal(0, result.Remaining)
	suite.True(result.OverAllocated)

	remaining, err := suite.service.RemainingForLine(suite.ctx, "DEM-1", "line-1")
	suite.Require().NoError(err)
	suite.Equal(0, remaining)
}

func (suite *LedgerServiceTestSuite) TestQuickAssignRejectsMoreThanAvailable() {
	_, err := suite.service.QuickAssign(suite.ctx, &QuickAssignInput{
		LotID: "lot-b", SalesOrderID: "DEM-1", OrderLineID: "line-2", Cases: 41,
	})
	suite.True(common.IsValidationError(err))
	suite.Equal(40, suite.cases("lot-b"))

	_, err = suite.service.QuickAssign(suite.ctx, &QuickAssignInput{
		LotID: "lot-b", SalesOrderID: "DEM-1", OrderLineID: "line-9", Cases: 1,
	})
	suite.True(common.IsValidationError(err))
}

func (suite *LedgerServiceTestSuite) TestRemainingIgnoresVoidAssignments() {
	a, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 30}))
	suite.Require().NoError(err)
	remaining, err := suite.service.RemainingForLine(suite.ctx, "DEM-1", "line-1")
	suite.Require().NoError(err)
	suite.Equal(70, remaining)

	_, err = suite.service.VoidAssignment(suite.ctx, a.ID)
	suite.Require().NoError(err)
	remaining, err = suite.service.RemainingForLine(suite.ctx, "DEM-1", "line-1")
	suite.Require().NoError(err)
	suite.Equal(100, remaining)

	_, err = suite.service.RemainingForLine(suite.ctx, "DEM-404", "line-1")
	suite.True(common.IsNotFoundError(err))
}

func (suite *LedgerServiceTestSuite) TestListAssignmentsFilter() {
	_, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 1}))
	suite.Require().NoError(err)
	b, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-b", Cases: 1}))
	suite.Require().NoError(err)
	_, err = suite.service.VoidAssignment(suite.ctx, b.ID)
	suite.Require().NoError(err)

	byLot, err := suite.service.ListAssignments(suite.ctx, &models.AssignmentFilter{LotID: "lot-b"})
	suite.Require().NoError(err)
	suite.Require().Len(byLot, 1)
	suite.Equal(b.ID, byLot[0].ID)

	active, err := suite.service.ListAssignments(suite.ctx, &models.AssignmentFilter{State: models.AssignmentStateActive})
	suite.Require().NoError(err)
	suite.Len(active, 1)
}

func (suite *LedgerServiceTestSuite) TestSuggestLotPicksEarliestETA() {
	suite.Require().NoError(suite.store.Update(suite.ctx, func(s *models.State) error {
		later := lotFixture("lot-later", 30)
		later.Material, later.ETA = "MAT-lot-a", "2024-06-20"
		sooner := lotFixture("lot-sooner", 60)
		sooner.Material, sooner.ETA = "MAT-lot-a", "2024-06-02"
		drained := lotFixture("lot-drained", 0)
		drained.Material, drained.ETA = "MAT-lot-a", "2024-05-01"
		s.Inventory = append(s.Inventory, later, sooner, drained)
		return nil
	}))

	suggestion, err := suite.service.SuggestLot(suite.ctx, "DEM-1", "line-1")
	suite.Require().NoError(err)
	suite.Equal("lot-sooner", suggestion.Lot.ID)
	suite.Equal(60, suggestion.Cases)
	suite.Equal(100, suggestion.Remaining)

	_, err = suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-a", Cases: 75}))
	suite.Require().NoError(err)
	suggestion, err = suite.service.SuggestLot(suite.ctx, "DEM-1", "line-1")
	suite.Require().NoError(err)
	suite.Equal("lot-sooner", suggestion.Lot.ID)
	suite.Equal(25, suggestion.Cases)
	suite.Equal(25, suggestion.Remaining)
}

func (suite *LedgerServiceTestSuite) TestSuggestLotWithoutStock() {
	_, err := suite.service.CreateAssignment(suite.ctx, suite.orderInput(AllocationRequest{LotID: "lot-b", Cases: 40}))
	suite.Require().NoError(err)

	_, err = suite.service.SuggestLot(suite.ctx, "DEM-1", "line-2")
	suite.True(common.IsNotFoundError(err))
	_, err = suite.service.SuggestLot(suite.ctx, "DEM-1", "no-line")
	suite.True(common.IsNotFoundError(err))
	_, err = suite.service.SuggestLot(suite.ctx, "DEM-404", "line-1")
	suite.True(common.IsNotFoundError(err))
}

func TestEtaBefore(t *testing.T) {
	assert.True(t, etaBefore("2024-01-01", "2024-02-01"))
	assert.False(t, etaBefore("2024-02-01", "2024-01-01"))
	assert.True(t, etaBefore("2024-02-01", ""))
	assert.False(t, etaBefore("", "2024-01-01"))
	assert.False(t, etaBefore("", ""))
}

func TestLedgerServiceTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceTestSuite))
}

// Random sequences of ledger operations must keep every lot's ordered cases equal to
// its available cases plus what ACTIVE assignments hold, and never oversell.
func TestLedgerConservesStock(t *testing.T) {
	ctx := context.Background()
	lots := []*models.InventoryLot{lotFixture("l1", 50), lotFixture("l2", 30), lotFixture("l3", 5)}
	store := newTestStore(t, lots, []*models.SalesOrder{orderFixture("DEM-1")})
	svc := NewLedgerService(store, nil, quietLogger())
	ordered := map[string]int{"l1": 50, "l2": 30, "l3": 5}
	ids := []string{"l1", "l2", "l3"}

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 400; step++ {
		current, err := svc.ListAssignments(ctx, nil)
		require.NoError(t, err)

		switch op := rng.Intn(4); {
		case op == 0 || len(current) == 0:
			n := 1 + rng.Intn(2)
			items := make([]AllocationRequest, 0, n)
			for i := 0; i < n; i++ {
				items = append(items, AllocationRequest{LotID: ids[rng.Intn(len(ids))], Cases: 1 + rng.Intn(20)})
			}
			_, err = svc.CreateAssignment(ctx, &CreateAssignmentInput{Type: models.AssignmentTypeSpot, SpotClient: "x", Items: items})
		case op == 1:
			_, err = svc.VoidAssignment(ctx, current[rng.Intn(len(current))].ID)
		case op == 2:
			_, err = svc.ReactivateAssignment(ctx, current[rng.Intn(len(current))].ID)
		default:
			err = svc.DeleteAssignment(ctx, current[rng.Intn(len(current))].ID)
		}
		if err != nil {
			require.True(t, common.IsInsufficientStockError(err) || common.IsInvalidStateError(err), "step %d: %v", step, err)
		}

		require.NoError(t, store.View(ctx, func(s *models.State) error {
			held := make(map[string]int)
			for _, a := range s.Assignments {
				if a.IsActive() {
					for lotID, cases := range a.CasesByLot() {
						held[lotID] += cases
					}
				}
			}
			for _, lot := range s.Inventory {
				assert.GreaterOrEqual(t, lot.CasesAvailable, 0)
				assert.Equal(t, ordered[lot.ID], lot.CasesAvailable+held[lot.ID], "step %d lot %s", step, lot.ID)
				assert.Equal(t, lot.CasesAvailable > 0, lot.Active, "step %d lot %s", step, lot.ID)
			}
			return nil
		}))
	}
}
