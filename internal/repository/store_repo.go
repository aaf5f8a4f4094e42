package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"langclash/internal/database"
	"langclash/internal/models"
)

const (
	maxSaveAttempts = 3
	saveBackoff     = 50 * time.Millisecond
)

// StoreRepository keeps one named queue in the durable_stores table as a
// single JSON document
type StoreRepository struct {
	db   database.DBTX
	name string
}

// NewStoreRepository creates a repository for the store called name
func NewStoreRepository(db database.DBTX, name string) *StoreRepository {
	return &StoreRepository{db: db, name: name}
}

// Name returns the store name
func (r *StoreRepository) Name() string {
	return r.name
}

// Load reads the stored queue; a store that was never written is empty
func (r *StoreRepository) Load(ctx context.Context) ([]models.QueuedSubmission, error) {
	var payload string
	query := `SELECT payload FROM durable_stores WHERE name = ?`
	err := r.db.QueryRowContext(ctx, query, r.name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store %s: %w", r.name, err)
	}

	var items []models.QueuedSubmission
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, fmt.Errorf("failed to decode store %s: %w", r.name, err)
	}
	return items, nil
}

// Save replaces the stored queue
func (r *StoreRepository) Save(ctx context.Context, items []models.QueuedSubmission) error {
	if items == nil {
		items = []models.QueuedSubmission{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode store %s: %w", r.name, err)
	}

	dialect := r.db.GetDialect()
	query := dialect.UpsertStore()
	for attempt := 1; ; attempt++ {
		_, err = r.db.ExecContext(ctx, query, r.name, string(payload))
		if err == nil {
			return nil
		}
		if attempt >= maxSaveAttempts || !dialect.IsRetryable(err) {
			return fmt.Errorf("failed to write store %s: %w", r.name, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to write store %s: %w", r.name, ctx.Err())
		case <-time.After(time.Duration(attempt) * saveBackoff):
		}
	}
}

// ListStores returns the names of all durable stores
func ListStores(ctx context.Context, db database.DBTX) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM durable_stores ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
