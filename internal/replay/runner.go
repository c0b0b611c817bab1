// Package replay rebuilds the derived layers from the append-only raw
// layer. The raw layer is the source of truth; latest states and price
// events are always reproducible from it.
package replay

import (
	"context"
	"fmt"
	"log"

	"pricewatch/internal/domain"
	"pricewatch/internal/pricechange"
	"pricewatch/internal/storage"
)

// Runner folds the full raw history through fresh derived stores.
type Runner struct {
	raw    storage.RawObservationStore
	latest storage.LatestStateStore
	engine *pricechange.Engine
	logger *log.Logger
}

// RunnerOptions contains configuration for creating a Runner. The latest
// store and the engine's event store should be empty; replay does not
// clear existing rows.
type RunnerOptions struct {
	RawStore    storage.RawObservationStore
	LatestStore storage.LatestStateStore
	Engine      *pricechange.Engine
	Logger      *log.Logger
}

// NewRunner creates a new replay runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		raw:    opts.RawStore,
		latest: opts.LatestStore,
		engine: opts.Engine,
		logger: logger,
	}
}

// Result summarizes one replay pass.
type Result struct {
	ObservationsReplayed int
	StatesRebuilt        int
	EventsEmitted        int
}

// Run replays every raw observation in deterministic order. Raw rows were
// validated before they were appended, so replay folds them without
// re-running validation or dedup.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	observations, err := r.raw.GetAllOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("load raw layer: %w", err)
	}
	SortObservations(observations)

	result := &Result{ObservationsReplayed: len(observations)}
	rebuilt := make(map[string]struct{})

	for _, o := range observations {
		changed, prev, err := r.latest.Upsert(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("replay fold %s/%s: %w", o.Source, o.ProductKey, err)
		}
		rebuilt[o.Source+"|"+o.ProductKey] = struct{}{}
		if !changed || prev == nil {
			continue
		}

		cur := &domain.LatestState{
			Source:     o.Source,
			ProductKey: o.ProductKey,
			Price:      o.Price,
			Currency:   o.Currency,
			Available:  o.Available,
			ObservedAt: o.ObservedAt,
		}
		event, err := r.engine.Detect(ctx, prev, cur)
		if err != nil {
			return nil, fmt.Errorf("replay detect %s/%s: %w", o.Source, o.ProductKey, err)
		}
		if event != nil {
			result.EventsEmitted++
		}
	}

	result.StatesRebuilt = len(rebuilt)
	r.logger.Printf("Replayed %d observations: %d states, %d events",
		result.ObservationsReplayed, result.StatesRebuilt, result.EventsEmitted)
	return result, nil
}
