package repositories

import (
	"context"
	"errors"
	"fmt"

	"salmontrack/internal/common"
	"salmontrack/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is the subset of pgxpool.Pool the repositories use
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type TrackingRepository interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, record *models.TrackingRecord) error
	GetByToken(ctx context.Context, token string) (*models.TrackingRecord, error)
	Ping(ctx context.Context) error
}

type trackingRepo struct {
	db Database
}

func NewTrackingRepository(db Database) TrackingRepository {
	return &trackingRepo{db: db}
}

func (r *trackingRepo) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS trackings (
			id BIGSERIAL PRIMARY KEY,
			tracking_token TEXT NOT NULL UNIQUE,
			inventory JSONB NOT NULL DEFAULT '[]'::jsonb,
			sales_orders JSONB NOT NULL DEFAULT '[]'::jsonb,
			assignments JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := r.db.Exec(ctx, query)
	return err
}

// Upsert inserts or replaces the snapshot for a token. The last writer wins.
func (r *trackingRepo) Upsert(ctx context.Context, record *models.TrackingRecord) error {
	query := `
		INSERT INTO trackings (tracking_token, inventory, sales_orders, assignments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (tracking_token) DO UPDATE
		SET inventory = EXCLUDED.inventory,
			sales_orders = EXCLUDED.sales_orders,
			assignments = EXCLUDED.assignments,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, record.TrackingToken,
		jsonOrEmpty(record.Inventory), jsonOrEmpty(record.SalesOrders), jsonOrEmpty(record.Assignments))
	if err != nil {
		return common.NewStorageError("upsert tracking", err)
	}
	return nil
}

func (r *trackingRepo) GetByToken(ctx context.Context, token string) (*models.TrackingRecord, error) {
	query := `
		SELECT tracking_token, inventory, sales_orders, assignments, created_at, updated_at
		FROM trackings
		WHERE tracking_token = $1
	`
	record := &models.TrackingRecord{}
	var inventory, orders, assignments []byte
	err := r.db.QueryRow(ctx, query, token).Scan(
		&record.TrackingToken, &inventory, &orders, &assignments, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("tracking", token)
		}
		return nil, common.NewStorageError(fmt.Sprintf("get tracking %s", token), err)
	}
	record.Inventory = inventory
	record.SalesOrders = orders
	record.Assignments = assignments
	return record, nil
}

func (r *trackingRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func jsonOrEmpty(raw []byte) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return []byte("[]")
	}
	return raw
}
