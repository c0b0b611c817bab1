package storage

import (
	"context"

	"pricewatch/internal/domain"
)

// RawObservationStore provides access to the bronze layer: append-only,
// write-once raw observations. No updates or deletes.
type RawObservationStore interface {
	// Append adds an observation. Returns ErrDuplicateKey if the tuple
	// (source, product_key, observed_at, price) already exists.
	Append(ctx context.Context, o *domain.Observation) error

	// GetByProduct retrieves all observations for a (source, product_key),
	// ordered by observed_at ASC.
	GetByProduct(ctx context.Context, source, productKey string) ([]*domain.Observation, error)

	// GetAllOrdered retrieves every observation ordered by observed_at ASC.
	// Ties are broken by (source, product_key, price) so replay order is
	// deterministic. This is the disaster-recovery scan.
	GetAllOrdered(ctx context.Context) ([]*domain.Observation, error)
}

// LatestStateStore provides access to the silver layer: one mutable row
// per (source, product_key). All writers must go through Upsert to
// preserve last-writer-wins by event time.
type LatestStateStore interface {
	// Upsert folds an accepted observation into the latest state.
	// The stored row is replaced only when the observation's observed_at is
	// strictly newer; equal or older timestamps are ignored. Returns whether
	// the stored value changed and the previous state (nil on first write).
	Upsert(ctx context.Context, o *domain.Observation) (changed bool, prev *domain.LatestState, err error)

	// Get retrieves the state for a (source, product_key).
	// Returns ErrNotFound if no observation has been folded yet.
	Get(ctx context.Context, source, productKey string) (*domain.LatestState, error)

	// List retrieves all states, ordered by (source, product_key).
	List(ctx context.Context) ([]*domain.LatestState, error)
}

// PriceEventStore provides access to the gold layer: append-only
// classified price events. Never mutated or deleted.
type PriceEventStore interface {
	// Append adds an event. Returns ErrDuplicateKey if event_id exists,
	// which makes gold-layer rebuilds idempotent.
	Append(ctx context.Context, e *domain.PriceEvent) error

	// GetByProduct retrieves all events for a (source, product_key),
	// ordered by detected_at ASC.
	GetByProduct(ctx context.Context, source, productKey string) ([]*domain.PriceEvent, error)

	// GetAll retrieves every event ordered by detected_at ASC, ties broken
	// by event_id.
	GetAll(ctx context.Context) ([]*domain.PriceEvent, error)
}
