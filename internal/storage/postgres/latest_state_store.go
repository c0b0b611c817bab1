package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

// LatestStateStore implements storage.LatestStateStore using PostgreSQL.
// The conditional update runs inside a transaction with a row lock so the
// strictly-newer rule holds even when callers race on the same key.
type LatestStateStore struct {
	pool *Pool
	now  func() time.Time
}

// NewLatestStateStore creates a new LatestStateStore.
func NewLatestStateStore(pool *Pool) *LatestStateStore {
	return &LatestStateStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.LatestStateStore = (*LatestStateStore)(nil)

// Upsert folds an observation into the latest state. Replaces only when
// observed_at is strictly newer than the stored row. Returns whether the
// row changed and, if it did, the previous state.
func (s *LatestStateStore) Upsert(ctx context.Context, o *domain.Observation) (bool, *domain.LatestState, error) {
	if o == nil || o.Source == "" || o.ProductKey == "" {
		return false, nil, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var prev domain.LatestState
	err = tx.QueryRow(ctx, `
		SELECT source, product_key, price, currency, available, observed_at, updated_at
		FROM latest_states
		WHERE source = $1 AND product_key = $2
		FOR UPDATE
	`, o.Source, o.ProductKey).Scan(
		&prev.Source,
		&prev.ProductKey,
		&prev.Price,
		&prev.Currency,
		&prev.Available,
		&prev.ObservedAt,
		&prev.UpdatedAt,
	)

	updatedAt := s.now().UnixMilli()

	switch {
	case err == nil:
		if o.ObservedAt <= prev.ObservedAt {
			return false, nil, nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE latest_states
			SET price = $3, currency = $4, available = $5, observed_at = $6, updated_at = $7
			WHERE source = $1 AND product_key = $2
		`, o.Source, o.ProductKey, o.Price, o.Currency, o.Available, o.ObservedAt, updatedAt)
		if err != nil {
			return false, nil, fmt.Errorf("update latest state: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, nil, fmt.Errorf("commit tx: %w", err)
		}
		return true, &prev, nil

	case isNotFoundError(err):
		_, err = tx.Exec(ctx, `
			INSERT INTO latest_states (
				source, product_key, price, currency, available, observed_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, o.Source, o.ProductKey, o.Price, o.Currency, o.Available, o.ObservedAt, updatedAt)
		if err != nil {
			return false, nil, fmt.Errorf("insert latest state: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, nil, fmt.Errorf("commit tx: %w", err)
		}
		return true, nil, nil

	default:
		return false, nil, fmt.Errorf("select latest state: %w", err)
	}
}

// Get retrieves the state for a (source, product_key).
func (s *LatestStateStore) Get(ctx context.Context, source, productKey string) (*domain.LatestState, error) {
	var state domain.LatestState
	err := s.pool.QueryRow(ctx, `
		SELECT source, product_key, price, currency, available, observed_at, updated_at
		FROM latest_states
		WHERE source = $1 AND product_key = $2
	`, source, productKey).Scan(
		&state.Source,
		&state.ProductKey,
		&state.Price,
		&state.Currency,
		&state.Available,
		&state.ObservedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest state: %w", err)
	}
	return &state, nil
}

// List retrieves all states, ordered by (source, product_key).
func (s *LatestStateStore) List(ctx context.Context) ([]*domain.LatestState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source, product_key, price, currency, available, observed_at, updated_at
		FROM latest_states
		ORDER BY source ASC, product_key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list latest states: %w", err)
	}
	defer rows.Close()

	return scanLatestStates(rows)
}

// scanLatestStates scans multiple rows into a slice of LatestState.
func scanLatestStates(rows pgx.Rows) ([]*domain.LatestState, error) {
	var states []*domain.LatestState

	for rows.Next() {
		var state domain.LatestState

		err := rows.Scan(
			&state.Source,
			&state.ProductKey,
			&state.Price,
			&state.Currency,
			&state.Available,
			&state.ObservedAt,
			&state.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan latest state row: %w", err)
		}

		states = append(states, &state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest state rows: %w", err)
	}

	return states, nil
}
