package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

// RawObservationStore implements storage.RawObservationStore using
// PostgreSQL. The table carries a unique constraint on
// (source, product_key, price, observed_at) so the layer stays
// append-only even across overlapping cycles and process restarts.
type RawObservationStore struct {
	pool *Pool
}

// NewRawObservationStore creates a new RawObservationStore.
func NewRawObservationStore(pool *Pool) *RawObservationStore {
	return &RawObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawObservationStore = (*RawObservationStore)(nil)

// Append adds an observation. Returns ErrDuplicateKey when the
// (source, product_key, price, observed_at) tuple already exists.
func (s *RawObservationStore) Append(ctx context.Context, o *domain.Observation) error {
	if o == nil || o.Source == "" || o.ProductKey == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO raw_observations (
			source, product_key, price, currency, available, observed_at, fetch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		o.Source,
		o.ProductKey,
		o.Price,
		o.Currency,
		o.Available,
		o.ObservedAt,
		o.FetchID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert raw observation: %w", err)
	}
	return nil
}

// GetByProduct retrieves all observations for a (source, product_key),
// ordered by observed_at.
func (s *RawObservationStore) GetByProduct(ctx context.Context, source, productKey string) ([]*domain.Observation, error) {
	query := `
		SELECT source, product_key, price, currency, available, observed_at, fetch_id
		FROM raw_observations
		WHERE source = $1 AND product_key = $2
		ORDER BY observed_at ASC, price ASC
	`

	rows, err := s.pool.Query(ctx, query, source, productKey)
	if err != nil {
		return nil, fmt.Errorf("get raw observations by product: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetAllOrdered retrieves the full raw layer in replay order.
func (s *RawObservationStore) GetAllOrdered(ctx context.Context) ([]*domain.Observation, error) {
	query := `
		SELECT source, product_key, price, currency, available, observed_at, fetch_id
		FROM raw_observations
		ORDER BY observed_at ASC, source ASC, product_key ASC, price ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all raw observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// scanObservations scans multiple rows into a slice of Observation.
func scanObservations(rows pgx.Rows) ([]*domain.Observation, error) {
	var observations []*domain.Observation

	for rows.Next() {
		var o domain.Observation

		err := rows.Scan(
			&o.Source,
			&o.ProductKey,
			&o.Price,
			&o.Currency,
			&o.Available,
			&o.ObservedAt,
			&o.FetchID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}

		observations = append(observations, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}

	return observations, nil
}
