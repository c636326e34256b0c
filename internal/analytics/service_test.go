package analytics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetSnapshot(ctx context.Context, token string) (*models.RawSnapshot, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RawSnapshot), args.Error(1)
}

func (m *MockCacheService) SetSnapshot(ctx context.Context, token string, snapshot *models.RawSnapshot, ttl time.Duration) error {
	return m.Called(ctx, token, snapshot, ttl).Error(0)
}

func (m *MockCacheService) DeleteSnapshot(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockCacheService) GetDashboard(ctx context.Context) (*models.Dashboard, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dashboard), args.Error(1)
}

func (m *MockCacheService) SetDashboard(ctx context.Context, dashboard *models.Dashboard, ttl time.Duration) error {
	return m.Called(ctx, dashboard, ttl).Error(0)
}

func (m *MockCacheService) DeleteDashboard(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) InvalidateAllCache(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCacheService) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seededStore(t *testing.T) repositories.StateStore {
	t.Helper()
	ctx := context.Background()
	store, err := repositories.NewStateStore(ctx, repositories.NewMemoryBackend(), quietLogger())
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, func(s *models.State) error {
		s.Inventory = append(s.Inventory,
			&models.InventoryLot{ID: "a", Warehouse: "Miami", CasesAvailable: 100, CaseFormatLb: 35, Active: true,
				Status: models.StatusInTransit, Sector: "Fresh", Trim: "D", Size: "3-4", TrackingToken: "ta"},
			&models.InventoryLot{ID: "b", Warehouse: "Miami", CasesAvailable: 20, CaseFormatLb: 10, Active: true,
				Status: models.StatusDelayed, Sector: "Fresh", Trim: "D", Size: "3-4", TrackingToken: "tb"},
			&models.InventoryLot{ID: "c", Warehouse: "LAX", CasesAvailable: 0, CaseFormatLb: 35, Active: false,
				Status: models.StatusDelivered, TrackingToken: "tc"},
		)
		s.Assignments = append(s.Assignments,
			&models.Assignment{ID: "ASG-0001", State: models.AssignmentStateActive},
			&models.Assignment{ID: "ASG-0002", State: models.AssignmentStateVoid},
		)
		s.SalesOrders = append(s.SalesOrders,
			&models.SalesOrder{ID: "DEM-1", Progress: "IN_PROGRESS"},
			&models.SalesOrder{ID: "DEM-2", Progress: "COMPLETED"},
			&models.SalesOrder{ID: "DEM-3"},
		)
		return nil
	}))
	return store
}

func TestDashboard_CalculatesOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	cache := new(MockCacheService)
	cache.On("GetDashboard", ctx).Return(nil, nil)
	cache.On("SetDashboard", ctx, mock.AnythingOfType("*models.Dashboard"), dashboardTTL).Return(nil)

	svc := NewAnalyticsService(seededStore(t), cache, quietLogger())
	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, d.ActiveLots)
	assert.Equal(t, 120, d.TotalCasesAvailable)
	assert.Equal(t, "3700", d.TotalPoundsAvailable.String())
	assert.Equal(t, 2, d.AssignmentCount)
	assert.Equal(t, 1, d.AssignmentsByState["ACTIVE"])
	assert.Equal(t, 1, d.AssignmentsByState["VOID"])
	assert.Equal(t, 2, d.PendingOrders)

	require.Len(t, d.ByWarehouse, 1)
	assert.Equal(t, "Miami", d.ByWarehouse[0].Warehouse)
	require.Len(t, d.Categories, 1)
	assert.Equal(t, "Fresh-D-3-4", d.Categories[0].Key)
	assert.Equal(t, 120, d.Categories[0].Cases)

	cache.AssertExpectations(t)
}

func TestDashboard_ServesCachedCopy(t *testing.T) {
	ctx := context.Background()
	cached := &models.Dashboard{ActiveLots: 42}
	cache := new(MockCacheService)
	cache.On("GetDashboard", ctx).Return(cached, nil)

	svc := NewAnalyticsService(seededStore(t), cache, quietLogger())
	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, d.ActiveLots)
	cache.AssertNotCalled(t, "SetDashboard", mock.Anything, mock.Anything, mock.Anything)
}

func TestDashboard_CacheFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	cache := new(MockCacheService)
	cache.On("GetDashboard", ctx).Return(nil, errors.New("redis down"))
	cache.On("SetDashboard", ctx, mock.Anything, dashboardTTL).Return(errors.New("redis down"))

	svc := NewAnalyticsService(seededStore(t), cache, quietLogger())
	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.ActiveLots)
}

func TestCategoriesSortBySectorTrimSize(t *testing.T) {
	ctx := context.Background()
	store, err := repositories.NewStateStore(ctx, repositories.NewMemoryBackend(), quietLogger())
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, func(s *models.State) error {
		for i, c := range []struct{ sector, trim, size string }{
			{"SA", "E", "2-3"},
			{"Fresh", "D", "4-5"},
			{"SA", "D", "3-4"},
			{"Fresh", "D", "2-3"},
			{"Fresh", "C", "3-4"},
		} {
			s.Inventory = append(s.Inventory, &models.InventoryLot{ID: fmt.Sprintf("lot-%d", i), Active: true,
				CasesAvailable: 10 * (i + 1), CaseFormatLb: 35, Status: models.StatusConfirmed,
				Sector: c.sector, Trim: c.trim, Size: c.size})
		}
		return nil
	}))

	d, err := NewAnalyticsService(store, nil, quietLogger()).Refresh(ctx)
	require.NoError(t, err)

	keys := make([]string, 0, len(d.Categories))
	for _, c := range d.Categories {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"Fresh-C-3-4", "Fresh-D-2-3", "Fresh-D-4-5", "SA-D-3-4", "SA-E-2-3"}, keys)
}

func TestByStatusFollowsPipelineOrder(t *testing.T) {
	svc := NewAnalyticsService(seededStore(t), nil, quietLogger())
	d, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, d.ByStatus, 2)
	assert.Equal(t, models.StatusDelayed, d.ByStatus[0].Status)
	assert.Equal(t, models.StatusInTransit, d.ByStatus[1].Status)
}
