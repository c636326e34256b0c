package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/config"
	"salmontrack/internal/models"

	"github.com/sirupsen/logrus"
)

// StateBackend persists one JSON blob per collection
type StateBackend interface {
	Load(ctx context.Context) (map[models.Collection][]byte, error)
	Save(ctx context.Context, blobs map[models.Collection][]byte) error
	Close() error
}

// Change describes a committed update. State is the new committed state and must not be mutated.
type Change struct {
	Collections []models.Collection
	State       *models.State
}

// ChangeListener is notified after every committed update that touched at least one collection
type ChangeListener func(change Change)

// StateStore owns the collections. Update runs fn against a private copy and swaps it in only
// when fn succeeds, so a failed operation never leaves partial writes behind.
type StateStore interface {
	View(ctx context.Context, fn func(state *models.State) error) error
	Update(ctx context.Context, fn func(state *models.State) error) error
	Subscribe(listener ChangeListener)
}

type stateStore struct {
	mu    sync.RWMutex
	state *models.State
	// blobs holds the bytes last known to be in the backend, per collection
	blobs     map[models.Collection][]byte
	backend   StateBackend
	shared    SharedLock
	logger    logrus.FieldLogger
	lmu       sync.RWMutex
	listeners []ChangeListener
	now       func() time.Time
}

// Option configures a StateStore
type Option func(*stateStore)

// WithSharedLock makes every Update take lock and re-read collections other instances saved
// to the backend before applying. Use it when several processes share one backend.
func WithSharedLock(lock SharedLock) Option {
	return func(s *stateStore) { s.shared = lock }
}

// NewStateStore loads the persisted collections from backend. A collection that fails to
// decode is logged and starts empty. Repairs made while loading are saved straight away.
func NewStateStore(ctx context.Context, backend StateBackend, logger logrus.FieldLogger, opts ...Option) (StateStore, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &stateStore{
		state:   models.NewState(),
		blobs:   make(map[models.Collection][]byte),
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := backend.Load(ctx)
	if err != nil {
		return nil, common.NewStorageError("load collections", err)
	}
	undecoded := make(map[models.Collection]bool)
	for _, collection := range models.AllCollections {
		data, ok := raw[collection]
		if !ok || len(data) == 0 {
			continue
		}
		if err := decodeCollection(s.state, collection, data); err != nil {
			config.LogError(logger, "state_store", "NewStateStore", "decode collection",
				map[string]string{"collection": string(collection)}, err)
			undecoded[collection] = true
			continue
		}
	}
	s.state.Sanitize()
	now := s.now()
	for _, lot := range s.state.Inventory {
		models.NormalizeLot(lot, now)
	}

	repaired := make(map[models.Collection][]byte)
	var repairedNames []models.Collection
	for _, collection := range models.AllCollections {
		data, err := encodeCollection(s.state, collection)
		if err != nil {
			return nil, common.NewStorageError(fmt.Sprintf("encode %s", collection), err)
		}
		stored, ok := raw[collection]
		switch {
		case !ok || len(stored) == 0 || undecoded[collection]:
			// an unreadable blob stays in the backend until the collection next changes
			s.blobs[collection] = data
		case bytes.Equal(data, stored):
			s.blobs[collection] = stored
		default:
			s.blobs[collection] = stored
			repaired[collection] = data
			repairedNames = append(repairedNames, collection)
		}
	}
	if len(repaired) > 0 {
		if err := backend.Save(ctx, repaired); err != nil {
			// blobs still hold the stored bytes, so the next Update sends the repairs again
			config.LogError(logger, "state_store", "NewStateStore", "persist repairs",
				repairedNames, common.NewStorageError("save collections", err))
		} else {
			for collection, data := range repaired {
				s.blobs[collection] = data
			}
		}
	}
	return s, nil
}

func (s *stateStore) View(ctx context.Context, fn func(state *models.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *stateStore) Update(ctx context.Context, fn func(state *models.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.shared != nil {
		release, err := s.shared.Lock(ctx, "state")
		if err != nil {
			return err
		}
		defer release()
	}

	s.mu.Lock()
	var collections []models.Collection
	if s.shared != nil {
		reloaded, err := s.reloadLocked(ctx)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		collections = reloaded
	}

	working := s.state.Clone()
	if err := fn(working); err != nil {
		s.mu.Unlock()
		if len(collections) > 0 {
			s.notify(Change{Collections: collections, State: s.committed()})
		}
		return err
	}
	working.Sanitize()

	changed := make(map[models.Collection][]byte)
	var dirty []models.Collection
	for _, collection := range models.AllCollections {
		data, err := encodeCollection(working, collection)
		if err != nil {
			s.mu.Unlock()
			return common.NewStorageError(fmt.Sprintf("encode %s", collection), err)
		}
		if !bytes.Equal(data, s.blobs[collection]) {
			changed[collection] = data
			dirty = append(dirty, collection)
		}
	}

	if len(changed) > 0 {
		if err := s.backend.Save(ctx, changed); err != nil {
			// State stays authoritative in memory. blobs keep the stored bytes, so every
			// collection that failed here differs again on the next Update and is re-sent.
			config.LogError(s.logger, "state_store", "Update", "persist collections",
				dirty, common.NewStorageError("save collections", err))
		} else {
			for collection, data := range changed {
				s.blobs[collection] = data
			}
		}
	}
	s.state = working
	s.mu.Unlock()

	collections = mergeCollections(collections, dirty)
	if len(collections) > 0 {
		s.notify(Change{Collections: collections, State: working})
	}
	return nil
}

// reloadLocked adopts every collection whose stored bytes moved since this store last read
// or wrote them. Callers hold s.mu.
func (s *stateStore) reloadLocked(ctx context.Context) ([]models.Collection, error) {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		return nil, common.NewStorageError("reload collections", err)
	}
	var working *models.State
	var adopted []models.Collection
	for _, collection := range models.AllCollections {
		data, ok := raw[collection]
		if !ok || len(data) == 0 || bytes.Equal(data, s.blobs[collection]) {
			continue
		}
		if working == nil {
			working = s.state.Clone()
		}
		if err := replaceCollection(working, collection, data); err != nil {
			config.LogError(s.logger, "state_store", "reloadLocked", "decode collection",
				map[string]string{"collection": string(collection)}, err)
			continue
		}
		s.blobs[collection] = data
		adopted = append(adopted, collection)
	}
	if working == nil {
		return nil, nil
	}
	working.Sanitize()
	s.state = working
	return adopted, nil
}

func (s *stateStore) committed() *models.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func mergeCollections(a, b []models.Collection) []models.Collection {
	seen := make(map[models.Collection]bool, len(a)+len(b))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		seen[c] = true
	}
	var out []models.Collection
	for _, c := range models.AllCollections {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

func (s *stateStore) Subscribe(listener ChangeListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *stateStore) notify(change Change) {
	s.lmu.RLock()
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.lmu.RUnlock()
	for _, listener := range listeners {
		listener(change)
	}
}

func encodeCollection(state *models.State, collection models.Collection) ([]byte, error) {
	switch collection {
	case models.CollectionInventory:
		return json.Marshal(state.Inventory)
	case models.CollectionSalesOrders:
		return json.Marshal(state.SalesOrders)
	case models.CollectionAssignments:
		return json.Marshal(state.Assignments)
	case models.CollectionArchivedLots:
		return json.Marshal(state.ArchivedLots)
	}
	return nil, fmt.Errorf("unknown collection %q", collection)
}

// replaceCollection swaps one collection of state for the decoded data
func replaceCollection(state *models.State, collection models.Collection, data []byte) error {
	fresh := &models.State{}
	if err := decodeCollection(fresh, collection, data); err != nil {
		return err
	}
	switch collection {
	case models.CollectionInventory:
		state.Inventory = fresh.Inventory
	case models.CollectionSalesOrders:
		state.SalesOrders = fresh.SalesOrders
	case models.CollectionAssignments:
		state.Assignments = fresh.Assignments
	case models.CollectionArchivedLots:
		state.ArchivedLots = fresh.ArchivedLots
	}
	return nil
}

func decodeCollection(state *models.State, collection models.Collection, data []byte) error {
	switch collection {
	case models.CollectionInventory:
		return json.Unmarshal(data, &state.Inventory)
	case models.CollectionSalesOrders:
		return json.Unmarshal(data, &state.SalesOrders)
	case models.CollectionAssignments:
		return json.Unmarshal(data, &state.Assignments)
	case models.CollectionArchivedLots:
		return json.Unmarshal(data, &state.ArchivedLots)
	}
	return fmt.Errorf("unknown collection %q", collection)
}

// MemoryBackend keeps the blobs in process memory
type MemoryBackend struct {
	mu    sync.Mutex
	blobs map[models.Collection][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[models.Collection][]byte)}
}

func (m *MemoryBackend) Load(ctx context.Context) (map[models.Collection][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.Collection][]byte, len(m.blobs))
	for k, v := range m.blobs {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *MemoryBackend) Save(ctx context.Context, blobs map[models.Collection][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range blobs {
		m.blobs[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
