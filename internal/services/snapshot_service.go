package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"salmontrack/internal/caching"
	"salmontrack/internal/common"
	"salmontrack/internal/config"
	"salmontrack/internal/metrics"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/sirupsen/logrus"
)

// SnapshotService publishes (inventory, orders, assignments) snapshots under lot tracking
// tokens and reads them back for the public tracking page.
type SnapshotService interface {
	Publish(ctx context.Context, token string, snapshot *models.RawSnapshot) error
	Fetch(ctx context.Context, token string) (*models.RawSnapshot, error)
	PublishAll(ctx context.Context) (int, error)
	// OnChange is a store listener; it republishes in the background and never blocks the writer
	OnChange(change repositories.Change)
	// Wait blocks until background publishes started so far have finished
	Wait()
}

type snapshotService struct {
	remote   SnapshotRemote
	store    repositories.StateStore
	cache    caching.CacheService
	cacheNS  string
	cacheTTL time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   logrus.FieldLogger
	inflight sync.WaitGroup

	// background publishes carry a sequence number so an older state never overwrites a newer one
	seq         atomic.Uint64
	publishMu   sync.Mutex
	lastApplied uint64
}

type SnapshotServiceOptions struct {
	CacheTTL       time.Duration
	PublishTimeout time.Duration
	// CacheNamespace keeps services with different remotes apart in a shared cache
	CacheNamespace string
}

func NewSnapshotService(remote SnapshotRemote, store repositories.StateStore, cache caching.CacheService, m *metrics.Metrics, logger logrus.FieldLogger, opts SnapshotServiceOptions) SnapshotService {
	if cache == nil {
		cache = caching.NewNoopCacheService()
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Second
	}
	return &snapshotService{
		remote:   remote,
		store:    store,
		cache:    cache,
		cacheNS:  strings.TrimSpace(opts.CacheNamespace),
		cacheTTL: opts.CacheTTL,
		timeout:  opts.PublishTimeout,
		metrics:  m,
		logger:   logger,
	}
}

func (s *snapshotService) cacheKey(token string) string {
	if s.cacheNS == "" {
		return token
	}
	return s.cacheNS + ":" + token
}

func (s *snapshotService) Publish(ctx context.Context, token string, snapshot *models.RawSnapshot) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return common.NewValidationError("token", "is required")
	}
	if snapshot == nil {
		snapshot = &models.RawSnapshot{}
	}
	snapshot, err := models.NewRawSnapshot(snapshot.Inventory, snapshot.SalesOrders, snapshot.Assignments)
	if err != nil {
		return common.NewValidationError("snapshot", "%v", err)
	}

	err = s.remote.Publish(ctx, token, snapshot)
	s.metrics.ObservePublish(err)
	if err != nil {
		return err
	}

	if cacheErr := s.cache.DeleteSnapshot(ctx, s.cacheKey(token)); cacheErr != nil {
		s.logger.WithField("token", token).WithError(cacheErr).Warn("failed to invalidate snapshot cache")
	}
	return nil
}

func (s *snapshotService) Fetch(ctx context.Context, token string) (*models.RawSnapshot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.NewValidationError("token", "is required")
	}

	cached, err := s.cache.GetSnapshot(ctx, s.cacheKey(token))
	if err != nil {
		s.logger.WithField("token", token).WithError(err).Warn("snapshot cache read failed")
	} else if cached != nil {
		s.metrics.ObserveFetch("cache", nil)
		return cached, nil
	}

	snapshot, err := s.remote.Fetch(ctx, token)
	s.metrics.ObserveFetch("remote", err)
	if err != nil {
		return nil, err
	}

	if s.cacheTTL > 0 {
		if cacheErr := s.cache.SetSnapshot(ctx, s.cacheKey(token), snapshot, s.cacheTTL); cacheErr != nil {
			s.logger.WithField("token", token).WithError(cacheErr).Warn("failed to cache snapshot")
		}
	}
	return snapshot, nil
}

// PublishAll publishes the current state once per distinct lot token
func (s *snapshotService) PublishAll(ctx context.Context) (int, error) {
	var state *models.State
	// committed states are never mutated, so the pointer stays valid after View returns
	if err := s.store.View(ctx, func(st *models.State) error {
		state = st
		return nil
	}); err != nil {
		return 0, err
	}
	return s.publishState(ctx, state)
}

func (s *snapshotService) publishState(ctx context.Context, state *models.State) (int, error) {
	snapshot, err := models.EncodeSnapshot(state.Snapshot())
	if err != nil {
		return 0, common.NewStorageError("encode snapshot", err)
	}
	var errs []error
	published := 0
	for _, token := range state.LotTokens() {
		if err := s.Publish(ctx, token, snapshot); err != nil {
			config.LogError(s.logger, "snapshot_service", "publishState", "publish snapshot",
				map[string]string{"token": token}, err)
			errs = append(errs, err)
			continue
		}
		published++
	}
	return published, errors.Join(errs...)
}

func (s *snapshotService) OnChange(change repositories.Change) {
	if !touchesSnapshot(change.Collections) {
		return
	}
	seq := s.seq.Add(1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.publishMu.Lock()
		defer s.publishMu.Unlock()
		if seq <= s.lastApplied {
			return
		}
		s.lastApplied = seq

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		// failures are logged inside publishState; the mutation already succeeded
		_, _ = s.publishState(ctx, change.State)
	}()
}

func (s *snapshotService) Wait() {
	s.inflight.Wait()
}

func touchesSnapshot(collections []models.Collection) bool {
	for _, c := range collections {
		switch c {
		case models.CollectionInventory, models.CollectionSalesOrders, models.CollectionAssignments:
			return true
		}
	}
	return false
}
