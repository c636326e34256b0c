package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/metrics"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SnapshotServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   repositories.StateStore
	remote  *MemoryRemote
	metrics *metrics.Metrics
	service SnapshotService
}

func (suite *SnapshotServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = newTestStore(suite.T(),
		[]*models.InventoryLot{lotFixture("lot-a", 100), lotFixture("lot-b", 20)},
		[]*models.SalesOrder{orderFixture("DEM-1")})
	suite.remote = NewMemoryRemote()
	suite.metrics = metrics.New(prometheus.NewRegistry())
	suite.service = NewSnapshotService(suite.remote, suite.store, nil, suite.metrics, quietLogger(), SnapshotServiceOptions{})
}

func (suite *SnapshotServiceTestSuite) TestPublishAndFetch() {
	snapshot := rawSnapshot(suite.T(), []*models.InventoryLot{lotFixture("lot-a", 5)}, nil, nil)
	suite.Require().NoError(suite.service.Publish(suite.ctx, "tok-x", snapshot))

	raw, err := suite.service.Fetch(suite.ctx, "tok-x")
	suite.Require().NoError(err)
	got := decodeRaw(suite.T(), raw)
	suite.Require().Len(got.Inventory, 1)
	suite.Equal("lot-a", got.Inventory[0].ID)
	suite.NotNil(got.SalesOrders)
	suite.NotNil(got.Assignments)
	suite.Equal(1.0, testutil.ToFloat64(suite.metrics.SnapshotPublishes.WithLabelValues("ok")))
}

func (suite *SnapshotServiceTestSuite) TestPublishRepublishReplaces() {
	suite.Require().NoError(suite.service.Publish(suite.ctx, "tok-x",
		rawSnapshot(suite.T(), []*models.InventoryLot{lotFixture("lot-a", 5)}, nil, nil)))
	suite.Require().NoError(suite.service.Publish(suite.ctx, "tok-x",
		rawSnapshot(suite.T(), []*models.InventoryLot{lotFixture("lot-b", 5), lotFixture("lot-c", 1)}, nil, nil)))

	raw, err := suite.service.Fetch(suite.ctx, "tok-x")
	suite.Require().NoError(err)
	suite.Len(decodeRaw(suite.T(), raw).Inventory, 2)
}

func (suite *SnapshotServiceTestSuite) TestPublishKeepsFieldsAsSent() {
	raw := &models.RawSnapshot{
		Inventory: json.RawMessage(`[{"id":"lot-a","trackingToken":"tok-x","cajasInv":12,"casesAvailable":2.5}]`),
	}
	suite.Require().NoError(suite.service.Publish(suite.ctx, "tok-x", raw))

	got, err := suite.service.Fetch(suite.ctx, "tok-x")
	suite.Require().NoError(err)
	suite.JSONEq(`[{"id":"lot-a","trackingToken":"tok-x","cajasInv":12,"casesAvailable":2.5}]`, string(got.Inventory))
	suite.Equal("[]", string(got.SalesOrders))

	err = suite.service.Publish(suite.ctx, "tok-y", &models.RawSnapshot{Inventory: json.RawMessage(`{"id":"lot-a"}`)})
	suite.True(common.IsValidationError(err))
}

func (suite *SnapshotServiceTestSuite) TestFetchUnknownToken() {
	_, err := suite.service.Fetch(suite.ctx, "never-published")
	suite.True(common.IsNotFoundError(err))

	_, err = suite.service.Fetch(suite.ctx, " ")
	suite.True(common.IsValidationError(err))
	suite.True(common.IsValidationError(suite.service.Publish(suite.ctx, "", nil)))
}

func (suite *SnapshotServiceTestSuite) TestPublishAllUsesEveryLotToken() {
	published, err := suite.service.PublishAll(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(2, published)

	for _, token := range []string{"tok-lot-a", "tok-lot-b"} {
		raw, err := suite.service.Fetch(suite.ctx, token)
		suite.Require().NoError(err)
		got := decodeRaw(suite.T(), raw)
		suite.Len(got.Inventory, 2)
		suite.Len(got.SalesOrders, 1)
	}
}

func (suite *SnapshotServiceTestSuite) TestOnChangeRepublishesInBackground() {
	suite.store.Subscribe(suite.service.OnChange)
	suite.Require().NoError(suite.store.Update(suite.ctx, func(s *models.State) error {
		lot, _ := s.Lot("lot-a")
		lot.Warehouse = "LAX"
		return nil
	}))
	suite.service.Wait()

	raw, err := suite.service.Fetch(suite.ctx, "tok-lot-b")
	suite.Require().NoError(err)
	lot, ok := decodeRaw(suite.T(), raw).LotByToken("tok-lot-a")
	suite.Require().True(ok)
	suite.Equal("LAX", lot.Warehouse)
}

func (suite *SnapshotServiceTestSuite) TestOnChangeIgnoresArchiveOnlyChanges() {
	suite.service.OnChange(repositories.Change{
		Collections: []models.Collection{models.CollectionArchivedLots},
		State:       models.NewState(),
	})
	suite.service.Wait()
	_, err := suite.remote.Fetch(suite.ctx, "tok-lot-a")
	suite.True(common.IsNotFoundError(err))
}

func TestSnapshotServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SnapshotServiceTestSuite))
}

func TestSnapshotFetchPrefersCache(t *testing.T) {
	ctx := context.Background()
	cached := rawSnapshot(t, []*models.InventoryLot{lotFixture("cached", 1)}, nil, nil)
	cache := new(MockCacheService)
	cache.On("GetSnapshot", ctx, "tok").Return(cached, nil).Once()

	svc := NewSnapshotService(NewMemoryRemote(), nil, cache, nil, quietLogger(), opts30s)
	got, err := svc.Fetch(ctx, "tok")
	require.NoError(t, err)
	assert.Same(t, cached, got)
	cache.AssertExpectations(t)
}

func TestSnapshotFetchFillsCacheAndPublishInvalidates(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryRemote()
	snapshot := rawSnapshot(t, []*models.InventoryLot{lotFixture("a", 1)}, nil, nil)
	require.NoError(t, remote.Publish(ctx, "tok", snapshot))

	cache := new(MockCacheService)
	cache.On("GetSnapshot", ctx, "tok").Return(nil, errors.New("redis down")).Once()
	cache.On("SetSnapshot", ctx, "tok", mock.AnythingOfType("*models.RawSnapshot"), opts30s.CacheTTL).Return(nil).Once()
	cache.On("DeleteSnapshot", ctx, "tok").Return(nil).Once()

	svc := NewSnapshotService(remote, nil, cache, nil, quietLogger(), opts30s)
	got, err := svc.Fetch(ctx, "tok")
	require.NoError(t, err)
	assert.Len(t, decodeRaw(t, got).Inventory, 1)

	require.NoError(t, svc.Publish(ctx, "tok", snapshot))
	cache.AssertExpectations(t)
}

func TestSnapshotCacheNamespacesKeepServicesApart(t *testing.T) {
	ctx := context.Background()
	published := NewMemoryRemote()
	served := NewMemoryRemote()
	require.NoError(t, published.Publish(ctx, "tok", rawSnapshot(t, []*models.InventoryLot{lotFixture("outbound", 1)}, nil, nil)))
	require.NoError(t, served.Publish(ctx, "tok", rawSnapshot(t, []*models.InventoryLot{lotFixture("inbound", 1)}, nil, nil)))

	cache := new(MockCacheService)
	cache.On("GetSnapshot", ctx, "published:tok").Return(nil, nil).Once()
	cache.On("SetSnapshot", ctx, "published:tok", mock.AnythingOfType("*models.RawSnapshot"), opts30s.CacheTTL).Return(nil).Once()
	cache.On("GetSnapshot", ctx, "served:tok").Return(nil, nil).Once()
	cache.On("SetSnapshot", ctx, "served:tok", mock.AnythingOfType("*models.RawSnapshot"), opts30s.CacheTTL).Return(nil).Once()

	outOpts, inOpts := opts30s, opts30s
	outOpts.CacheNamespace = "published"
	inOpts.CacheNamespace = "served"
	outbound := NewSnapshotService(published, nil, cache, nil, quietLogger(), outOpts)
	inbound := NewSnapshotService(served, nil, cache, nil, quietLogger(), inOpts)

	got, err := outbound.Fetch(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "outbound", decodeRaw(t, got).Inventory[0].ID)
	got, err = inbound.Fetch(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "inbound", decodeRaw(t, got).Inventory[0].ID)
	cache.AssertExpectations(t)
}

var opts30s = SnapshotServiceOptions{CacheTTL: 30 * time.Second}

func TestDirectRemote(t *testing.T) {
	ctx := context.Background()
	repo := new(MockTrackingRepository)
	remote := NewDirectRemote(repo)

	repo.On("Upsert", ctx, mock.MatchedBy(func(r *models.TrackingRecord) bool {
		return r.TrackingToken == "tok" && string(r.SalesOrders) == "[]" && string(r.Assignments) == "[]"
	})).Return(nil).Once()
	require.NoError(t, remote.Publish(ctx, "tok", rawSnapshot(t, []*models.InventoryLot{lotFixture("a", 1)}, nil, nil)))

	repo.On("GetByToken", ctx, "tok").Return(&models.TrackingRecord{
		TrackingToken: "tok",
		Inventory:     json.RawMessage(`[{"id":"a","po":"PO-a","casesAvailable":1}]`),
		SalesOrders:   json.RawMessage(`[]`),
		Assignments:   json.RawMessage(`[]`),
	}, nil).Once()
	got, err := remote.Fetch(ctx, "tok")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","po":"PO-a","casesAvailable":1}]`, string(got.Inventory))

	repo.On("GetByToken", ctx, "missing").Return(nil, common.NewNotFoundError("tracking", "missing")).Once()
	_, err = remote.Fetch(ctx, "missing")
	assert.True(t, common.IsNotFoundError(err))

	repo.On("GetByToken", ctx, "broken").Return(&models.TrackingRecord{
		Inventory: json.RawMessage(`{"not":"an array"}`),
	}, nil).Once()
	_, err = remote.Fetch(ctx, "broken")
	assert.True(t, common.IsStorageError(err))

	repo.AssertExpectations(t)
}

func TestHTTPRemote(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]json.RawMessage{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/create-tracking":
			var body struct {
				Token string `json:"token"`
			}
			raw := json.RawMessage{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			assert.NoError(t, json.Unmarshal(raw, &body))
			if body.Token == "reject" {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"failed to save tracking"}`))
				return
			}
			mu.Lock()
			stored[body.Token] = raw
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/get-tracking":
			mu.Lock()
			raw, ok := stored[r.URL.Query().Get("token")]
			mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"not found"}`))
				return
			}
			_, _ = w.Write(raw)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	remote := NewHTTPRemote(server.URL, 0)

	snapshot := rawSnapshot(t,
		[]*models.InventoryLot{lotFixture("a", 3)},
		[]*models.SalesOrder{orderFixture("DEM-1")},
		nil)
	require.NoError(t, remote.Publish(ctx, "tok a", snapshot))

	raw, err := remote.Fetch(ctx, "tok a")
	require.NoError(t, err)
	got := decodeRaw(t, raw)
	require.Len(t, got.Inventory, 1)
	require.Len(t, got.SalesOrders, 1)
	assert.Equal(t, "DEM-1", got.SalesOrders[0].ID)

	_, err = remote.Fetch(ctx, "unknown")
	assert.True(t, common.IsNotFoundError(err))

	err = remote.Publish(ctx, "reject", snapshot)
	assert.True(t, common.IsStorageError(err))
}
