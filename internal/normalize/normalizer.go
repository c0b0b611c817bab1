// Package normalize implements the dedup & normalization stage: currency
// canonicalization, validation, exact-duplicate suppression, and the fold
// of accepted observations into the bronze and silver layers.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pricewatch/internal/domain"
	"pricewatch/internal/observability"
	"pricewatch/internal/storage"
)

// Default dedup window bounds; both are tunable via NormalizerOptions.
const (
	DefaultDedupWindow     = 15 * time.Minute
	DefaultDedupMaxEntries = 100_000
)

// Status classifies the outcome of processing one observation.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// ValidationError describes a malformed observation. Malformed input is
// rejected and counted, never silently coerced.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// FoldResult reports what happened to a single observation.
type FoldResult struct {
	Status Status
	Reason string // set when Status is StatusRejected
	// Changed is true when the silver layer was actually updated; it is
	// the sole trigger condition for the price-change engine.
	Changed bool
	Prev    *domain.LatestState // previous state when Changed, nil on first fold
	// Normalized is the observation as folded: validated, with the price
	// converted into the canonical currency. Set when Status is
	// StatusAccepted.
	Normalized *domain.Observation
}

// Normalizer consumes the fetch scheduler's observation stream. It is not
// safe for concurrent use on the same product key; the orchestrator
// serializes calls per key through its lanes.
type Normalizer struct {
	rates  *RateTable
	raw    storage.RawObservationStore
	latest storage.LatestStateStore
	window *dedupWindow
	logger *log.Logger
}

// NormalizerOptions contains configuration for creating a Normalizer.
type NormalizerOptions struct {
	Rates           *RateTable
	RawStore        storage.RawObservationStore
	LatestStore     storage.LatestStateStore
	DedupWindow     time.Duration // default 15m
	DedupMaxEntries int           // default 100000
	Logger          *log.Logger
	Clock           func() time.Time // injectable for window tests
}

// NewNormalizer creates a new dedup & normalization stage.
func NewNormalizer(opts NormalizerOptions) *Normalizer {
	window := opts.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	maxEntries := opts.DedupMaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultDedupMaxEntries
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	rates := opts.Rates
	if rates == nil {
		rates = NewRateTable("USD", nil)
	}

	return &Normalizer{
		rates:  rates,
		raw:    opts.RawStore,
		latest: opts.LatestStore,
		window: newDedupWindow(window, maxEntries, opts.Clock),
		logger: logger,
	}
}

// Process normalizes, validates, deduplicates and folds one observation.
// Storage failures are returned to the caller and abort only this
// observation's key; validation failures are reported in the result.
func (n *Normalizer) Process(ctx context.Context, o *domain.Observation) (FoldResult, error) {
	normalized, verr := n.normalize(o)
	if verr != nil {
		return FoldResult{Status: StatusRejected, Reason: verr.Reason}, nil
	}

	dup := n.window.observe(normalized.Key())
	observability.SetDedupWindowSize(n.window.len())
	if dup {
		return FoldResult{Status: StatusDuplicate}, nil
	}

	if err := n.raw.Append(ctx, normalized); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Tuple already in bronze from an earlier cycle; replay no-op.
			return FoldResult{Status: StatusDuplicate}, nil
		}
		return FoldResult{}, fmt.Errorf("append raw %s/%s: %w", normalized.Source, normalized.ProductKey, err)
	}

	changed, prev, err := n.latest.Upsert(ctx, normalized)
	if err != nil {
		return FoldResult{}, fmt.Errorf("upsert latest %s/%s: %w", normalized.Source, normalized.ProductKey, err)
	}

	return FoldResult{Status: StatusAccepted, Changed: changed, Prev: prev, Normalized: normalized}, nil
}

// normalize validates the observation and converts its price into the
// canonical currency. The input is never mutated.
func (n *Normalizer) normalize(o *domain.Observation) (*domain.Observation, *ValidationError) {
	if o == nil {
		return nil, &ValidationError{Reason: "nil observation"}
	}
	if o.Source == "" {
		return nil, &ValidationError{Reason: "missing source"}
	}
	if o.ProductKey == "" {
		return nil, &ValidationError{Reason: "missing product key"}
	}
	if o.Price <= 0 {
		return nil, &ValidationError{Reason: "non-positive price"}
	}
	if o.ObservedAt <= 0 {
		return nil, &ValidationError{Reason: "unparseable timestamp"}
	}

	currency := o.Currency
	if currency == "" {
		return nil, &ValidationError{Reason: "missing currency"}
	}

	converted, ok := n.rates.Convert(o.Price, currency)
	if !ok {
		return nil, &ValidationError{Reason: "unknown currency " + currency}
	}

	normalized := *o
	normalized.Price = converted
	normalized.Currency = n.rates.Canonical()
	return &normalized, nil
}

// WindowSize reports the current dedup window occupancy, for metrics.
func (n *Normalizer) WindowSize() int {
	return n.window.len()
}
