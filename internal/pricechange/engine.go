// Package pricechange derives business events from latest-state
// transitions and dispatches alerts for them.
package pricechange

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pricewatch/internal/domain"
	"pricewatch/internal/idhash"
	"pricewatch/internal/storage"
)

// Default classification thresholds, as positive fractions of the old
// price. A drop threshold of 0.10 fires on moves of -10% or worse.
const (
	DefaultDropThreshold = 0.10
	DefaultRiseThreshold = 0.10
)

// Engine classifies state transitions into price events and appends them
// to the gold layer. It only ever sees transitions that actually changed
// the latest state, so it never needs to re-check staleness.
type Engine struct {
	events    storage.PriceEventStore
	alerts    *Dispatcher
	dropBelow float64
	riseAbove float64
	logger    *log.Logger
	now       func() time.Time
}

// EngineOptions contains configuration for creating an Engine.
type EngineOptions struct {
	EventStore    storage.PriceEventStore
	Alerts        *Dispatcher // optional; nil disables dispatch
	DropThreshold float64     // positive magnitude, default 0.10
	RiseThreshold float64     // positive magnitude, default 0.10
	Logger        *log.Logger
	Clock         func() time.Time
}

// NewEngine creates a new price-change engine.
func NewEngine(opts EngineOptions) *Engine {
	drop := opts.DropThreshold
	if drop == 0 {
		drop = DefaultDropThreshold
	}
	riseAbove := opts.RiseThreshold
	if riseAbove == 0 {
		riseAbove = DefaultRiseThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Engine{
		events:    opts.EventStore,
		alerts:    opts.Alerts,
		dropBelow: -drop,
		riseAbove: riseAbove,
		logger:    logger,
		now:       now,
	}
}

// Detect classifies the transition from prev to cur. prev is nil for the
// first observation of a key; that establishes a baseline and never fires.
// Returns the stored event, or nil when the transition is unremarkable.
func (e *Engine) Detect(ctx context.Context, prev *domain.LatestState, cur *domain.LatestState) (*domain.PriceEvent, error) {
	if cur == nil {
		return nil, errors.New("detect: nil current state")
	}
	if prev == nil {
		return nil, nil
	}

	changePct := 0.0
	if prev.Price > 0 {
		changePct = (cur.Price - prev.Price) / prev.Price
	}

	class, ok := e.classify(prev, cur, changePct)
	if !ok {
		return nil, nil
	}

	detectedAt := e.now().UnixMilli()
	event := &domain.PriceEvent{
		EventID:        idhash.EventID(cur.Source, cur.ProductKey, prev.Price, cur.Price, cur.ObservedAt),
		Source:         cur.Source,
		ProductKey:     cur.ProductKey,
		OldPrice:       prev.Price,
		NewPrice:       cur.Price,
		ChangePct:      changePct,
		Classification: class,
		DetectedAt:     detectedAt,
	}

	if err := e.events.Append(ctx, event); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Same transition detected before; replay or overlapping cycle.
			return nil, nil
		}
		return nil, fmt.Errorf("append price event %s: %w", event.EventID, err)
	}

	e.logger.Printf("Detected %s for %s/%s: %.2f -> %.2f (%.1f%%)",
		class, event.Source, event.ProductKey, event.OldPrice, event.NewPrice, changePct*100)

	if e.alerts != nil {
		e.alerts.Dispatch(event)
	}
	return event, nil
}

// classify applies the precedence order: availability transitions beat
// price moves, and a move inside both thresholds is not an event.
func (e *Engine) classify(prev, cur *domain.LatestState, changePct float64) (domain.Classification, bool) {
	switch {
	case prev.Available && !cur.Available:
		return domain.ClassStockOut, true
	case !prev.Available && cur.Available:
		return domain.ClassBackInStock, true
	case changePct <= e.dropBelow:
		return domain.ClassPriceDrop, true
	case changePct >= e.riseAbove:
		return domain.ClassPriceRise, true
	default:
		return "", false
	}
}
