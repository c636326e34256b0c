package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"salmontrack/internal/common"
	"salmontrack/internal/models"
	"salmontrack/internal/repositories"
)

// SnapshotRemote is the token keyed table snapshots are published to. Collections travel as
// the JSON arrays the publisher sent.
type SnapshotRemote interface {
	Publish(ctx context.Context, token string, snapshot *models.RawSnapshot) error
	Fetch(ctx context.Context, token string) (*models.RawSnapshot, error)
}

// DirectRemote writes straight to the Postgres trackings table
type DirectRemote struct {
	repo repositories.TrackingRepository
}

func NewDirectRemote(repo repositories.TrackingRepository) *DirectRemote {
	return &DirectRemote{repo: repo}
}

func (r *DirectRemote) Publish(ctx context.Context, token string, snapshot *models.RawSnapshot) error {
	return r.repo.Upsert(ctx, &models.TrackingRecord{
		TrackingToken: token,
		Inventory:     snapshot.Inventory,
		SalesOrders:   snapshot.SalesOrders,
		Assignments:   snapshot.Assignments,
	})
}

func (r *DirectRemote) Fetch(ctx context.Context, token string) (*models.RawSnapshot, error) {
	record, err := r.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	snapshot, err := models.NewRawSnapshot(record.Inventory, record.SalesOrders, record.Assignments)
	if err != nil {
		return nil, common.NewStorageError("decode tracking "+token, err)
	}
	return snapshot, nil
}

// HTTPRemote talks to another deployment's /create-tracking and /get-tracking endpoints
type HTTPRemote struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRemote{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// makeRequest performs an HTTP request against the tracking API
func (r *HTTPRemote) makeRequest(ctx context.Context, method, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func (r *HTTPRemote) Publish(ctx context.Context, token string, snapshot *models.RawSnapshot) error {
	payload := map[string]any{
		"token":       token,
		"inventory":   snapshot.Inventory,
		"salesOrders": snapshot.SalesOrders,
		"assignments": snapshot.Assignments,
	}
	resp, err := r.makeRequest(ctx, http.MethodPost, "/create-tracking", payload)
	if err != nil {
		return common.NewStorageError("publish tracking", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return common.NewStorageError("publish tracking",
			fmt.Errorf("tracking API returned status %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

func (r *HTTPRemote) Fetch(ctx context.Context, token string) (*models.RawSnapshot, error) {
	resp, err := r.makeRequest(ctx, http.MethodGet, "/get-tracking?token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, common.NewStorageError("fetch tracking", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.NewStorageError("fetch tracking", fmt.Errorf("failed to read response body: %w", err))
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, common.NewNotFoundError("tracking", token)
	default:
		return nil, common.NewStorageError("fetch tracking",
			fmt.Errorf("tracking API returned status %d: %s", resp.StatusCode, string(body)))
	}

	snapshot, err := models.DecodeRawSnapshot(body)
	if err != nil {
		return nil, common.NewStorageError("fetch tracking", err)
	}
	return snapshot, nil
}

// MemoryRemote keeps published snapshots in process; used when no remote is configured
type MemoryRemote struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{snapshots: make(map[string][]byte)}
}

func (r *MemoryRemote) Publish(ctx context.Context, token string, snapshot *models.RawSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[token] = data
	return nil
}

func (r *MemoryRemote) Fetch(ctx context.Context, token string) (*models.RawSnapshot, error) {
	r.mu.RLock()
	data, ok := r.snapshots[token]
	r.mu.RUnlock()
	if !ok {
		return nil, common.NewNotFoundError("tracking", token)
	}
	return models.DecodeRawSnapshot(data)
}
