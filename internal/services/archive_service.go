package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/config"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"

	"github.com/sirupsen/logrus"
)

const (
	archiveObjectLayout = "20060102T150405Z"
	archiveURLExpiry    = 15 * time.Minute
)

// ArchiveEntry is an archived snapshot with a short-lived download link
type ArchiveEntry struct {
	ArchiveObject
	URL string `json:"url"`
}

// ArchiveService keeps point-in-time copies of tracking snapshots in object storage
type ArchiveService interface {
	// ArchiveSnapshot stores the current snapshot under the token of an existing lot
	ArchiveSnapshot(ctx context.Context, token string) (string, error)
	// ArchiveDelivered stores the current snapshot under the token of every lot taken off the worklist
	ArchiveDelivered(ctx context.Context) (int, error)
	ArchiveURL(ctx context.Context, objectName string) (string, error)
	// ListArchives returns the copies stored for a token, newest first
	ListArchives(ctx context.Context, token string) ([]ArchiveEntry, error)
}

type archiveService struct {
	objects ArchiveStore
	bucket  string
	store   repositories.StateStore
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewArchiveService(objects ArchiveStore, bucket string, store repositories.StateStore, logger logrus.FieldLogger) ArchiveService {
	return &archiveService{
		objects: objects,
		bucket:  bucket,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

func archivePrefix(token string) string {
	return "tracking/" + token + "/"
}

func archiveObjectName(token string, at time.Time) string {
	return archivePrefix(token) + at.UTC().Format(archiveObjectLayout) + ".json"
}

func (s *archiveService) ArchiveSnapshot(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	var snapshot *models.Snapshot
	err := s.store.View(ctx, func(state *models.State) error {
		if _, ok := state.LotByToken(token); token == "" || !ok {
			return common.NewNotFoundError("tracking token", token)
		}
		snapshot = state.Snapshot()
		return nil
	})
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.objects.EnsureBucket(ctx, s.bucket); err != nil {
		return "", fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}
	return s.put(ctx, token, data)
}

func (s *archiveService) put(ctx context.Context, token string, data []byte) (string, error) {
	objectName := archiveObjectName(token, s.now())
	if err := s.objects.PutJSON(ctx, s.bucket, objectName, data); err != nil {
		return "", fmt.Errorf("put %s: %w", objectName, err)
	}
	return objectName, nil
}

// unchanged reports whether the newest copy stored for token already holds data
func (s *archiveService) unchanged(ctx context.Context, token string, data []byte) (bool, error) {
	objects, err := s.objects.List(ctx, s.bucket, archivePrefix(token))
	if err != nil {
		return false, fmt.Errorf("list archives for %s: %w", token, err)
	}
	if len(objects) == 0 {
		return false, nil
	}
	latest := objects[0].Name
	for _, obj := range objects[1:] {
		if obj.Name > latest {
			latest = obj.Name
		}
	}
	stored, err := s.objects.Get(ctx, s.bucket, latest)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", latest, err)
	}
	return bytes.Equal(stored, data), nil
}

// ArchiveDelivered skips tokens whose newest copy already matches the current snapshot
func (s *archiveService) ArchiveDelivered(ctx context.Context) (int, error) {
	var state *models.State
	if err := s.store.View(ctx, func(st *models.State) error {
		state = st
		return nil
	}); err != nil {
		return 0, err
	}
	if len(state.ArchivedLots) == 0 {
		return 0, nil
	}

	data, err := json.Marshal(state.Snapshot())
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.objects.EnsureBucket(ctx, s.bucket); err != nil {
		return 0, fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}

	var errs []error
	archived := 0
	for _, lotID := range state.ArchivedLots {
		lot, ok := state.Lot(lotID)
		if !ok || lot.TrackingToken == "" {
			continue
		}
		same, err := s.unchanged(ctx, lot.TrackingToken, data)
		if err == nil && same {
			continue
		}
		if err == nil {
			_, err = s.put(ctx, lot.TrackingToken, data)
		}
		if err != nil {
			config.LogError(s.logger, "archive_service", "ArchiveDelivered", "archive snapshot",
				map[string]string{"lot_id": lotID}, err)
			errs = append(errs, err)
			continue
		}
		archived++
	}
	return archived, errors.Join(errs...)
}

func (s *archiveService) ArchiveURL(ctx context.Context, objectName string) (string, error) {
	return s.objects.PresignedURL(ctx, s.bucket, objectName, archiveURLExpiry)
}

func (s *archiveService) ListArchives(ctx context.Context, token string) ([]ArchiveEntry, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.NewValidationError("token", "is required")
	}
	objects, err := s.objects.List(ctx, s.bucket, archivePrefix(token))
	if err != nil {
		return nil, fmt.Errorf("list archives for %s: %w", token, err)
	}
	// names embed a UTC timestamp, so name order is time order
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name > objects[j].Name })

	entries := make([]ArchiveEntry, 0, len(objects))
	for _, obj := range objects {
		url, err := s.ArchiveURL(ctx, obj.Name)
		if err != nil {
			return nil, fmt.Errorf("sign %s: %w", obj.Name, err)
		}
		entries = append(entries, ArchiveEntry{ArchiveObject: obj, URL: url})
	}
	return entries, nil
}
