package services

import (
	"context"
	"io"
	"testing"
	"time"

	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func lotFixture(id string, cases int) *models.InventoryLot {
	return &models.InventoryLot{
		ID:             id,
		PO:             "PO-" + id,
		CustomerPO:     "CPO-" + id,
		Material:       "MAT-" + id,
		Product:        "Atlantic salmon " + id,
		Warehouse:      "Miami",
		CaseFormatLb:   35,
		CasesOrdered:   cases,
		CasesAvailable: cases,
		Active:         cases > 0,
		Status:         models.StatusConfirmed,
		StatusHistory:  []models.StatusEntry{{At: time.Now(), Status: models.StatusConfirmed}},
		TrackingToken:  "tok-" + id,
	}
}

func orderFixture(id string, lines ...models.OrderLine) *models.SalesOrder {
	return &models.SalesOrder{
		ID:           id,
		DemandID:     id,
		CustomerName: "Blue Harbor Foods",
		ShipTo:       "Blue Harbor Miami DC",
		Lines:        lines,
	}
}

func newTestStore(t *testing.T, lots []*models.InventoryLot, orders []*models.SalesOrder) repositories.StateStore {
	t.Helper()
	ctx := context.Background()
	store, err := repositories.NewStateStore(ctx, repositories.NewMemoryBackend(), quietLogger())
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, func(s *models.State) error {
		s.Inventory = append(s.Inventory, lots...)
		s.SalesOrders = append(s.SalesOrders, orders...)
		return nil
	}))
	return store
}

func rawSnapshot(t *testing.T, lots []*models.InventoryLot, orders []*models.SalesOrder, assignments []*models.Assignment) *models.RawSnapshot {
	t.Helper()
	raw, err := models.EncodeSnapshot(models.NewSnapshot(lots, orders, assignments))
	require.NoError(t, err)
	return raw
}

func decodeRaw(t *testing.T, raw *models.RawSnapshot) *models.Snapshot {
	t.Helper()
	snapshot, err := raw.Decode()
	require.NoError(t, err)
	return snapshot
}

func lotState(t *testing.T, store repositories.StateStore, id string) *models.InventoryLot {
	t.Helper()
	var lot *models.InventoryLot
	require.NoError(t, store.View(context.Background(), func(s *models.State) error {
		found, ok := s.Lot(id)
		require.True(t, ok, "lot %s missing", id)
		lot = found.Clone()
		return nil
	}))
	return lot
}

// MockCacheService implements caching.CacheService
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

// MockTrackingRepository implements repositories.TrackingRepository
type MockTrackingRepository struct {
	mock.Mock
}

func (m *MockTrackingRepository) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTrackingRepository) Upsert(ctx context.Context, record *models.TrackingRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockTrackingRepository) GetByToken(ctx context.Context, token string) (*models.TrackingRecord, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TrackingRecord), args.Error(1)
}

func (m *MockTrackingRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockArchiveStore implements ArchiveStore
type MockArchiveStore struct {
	mock.Mock
}

func (m *MockArchiveStore) EnsureBucket(ctx context.Context, bucket string) error {
	return m.Called(ctx, bucket).Error(0)
}

func (m *MockArchiveStore) PutJSON(ctx context.Context, bucket, name string, data []byte) error {
	return m.Called(ctx, bucket, name, data).Error(0)
}

func (m *MockArchiveStore) Get(ctx context.Context, bucket, name string) ([]byte, error) {
	args := m.Called(ctx, bucket, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockArchiveStore) List(ctx context.Context, bucket, prefix string) ([]ArchiveObject, error) {
	args := m.Called(ctx, bucket, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ArchiveObject), args.Error(1)
}

func (m *MockArchiveStore) PresignedURL(ctx context.Context, bucket, name string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, bucket, name, expiry)
	return args.String(0), args.Error(1)
}
