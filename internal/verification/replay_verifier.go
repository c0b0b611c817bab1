package verification

import (
	"context"
	"fmt"

	"pricewatch/internal/domain"
	"pricewatch/internal/pricechange"
	"pricewatch/internal/replay"
	"pricewatch/internal/storage"
	"pricewatch/internal/storage/memory"
)

// ReplayVerifier implements Verifier. It replays the raw layer into fresh
// in-memory stores and diffs them against the live derived layers.
type ReplayVerifier struct {
	raw    storage.RawObservationStore
	latest storage.LatestStateStore
	events storage.PriceEventStore

	dropThreshold float64
	riseThreshold float64
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
// Thresholds must match the ones the live engine ran with; a mismatch shows
// up as event divergences, which is exactly what the verifier is for.
type ReplayVerifierOptions struct {
	RawStore      storage.RawObservationStore
	LatestStore   storage.LatestStateStore
	EventStore    storage.PriceEventStore
	DropThreshold float64
	RiseThreshold float64
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		raw:           opts.RawStore,
		latest:        opts.LatestStore,
		events:        opts.EventStore,
		dropThreshold: opts.DropThreshold,
		riseThreshold: opts.RiseThreshold,
	}
}

// Compile-time interface check.
var _ Verifier = (*ReplayVerifier)(nil)

// Verify rebuilds the derived layers from raw and compares row by row.
func (v *ReplayVerifier) Verify(ctx context.Context) (*Report, error) {
	rebuiltLatest := memory.NewLatestStateStore()
	rebuiltEvents := memory.NewPriceEventStore()

	runner := replay.NewRunner(replay.RunnerOptions{
		RawStore:    v.raw,
		LatestStore: rebuiltLatest,
		Engine: pricechange.NewEngine(pricechange.EngineOptions{
			EventStore:    rebuiltEvents,
			DropThreshold: v.dropThreshold,
			RiseThreshold: v.riseThreshold,
		}),
	})
	if _, err := runner.Run(ctx); err != nil {
		return nil, fmt.Errorf("rebuild for verification: %w", err)
	}

	report := &Report{}
	if err := v.verifyStates(ctx, rebuiltLatest, report); err != nil {
		return nil, err
	}
	if err := v.verifyEvents(ctx, rebuiltEvents, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (v *ReplayVerifier) verifyStates(ctx context.Context, rebuilt storage.LatestStateStore, report *Report) error {
	liveStates, err := v.latest.List(ctx)
	if err != nil {
		return fmt.Errorf("list live states: %w", err)
	}
	rebuiltStates, err := rebuilt.List(ctx)
	if err != nil {
		return fmt.Errorf("list rebuilt states: %w", err)
	}

	type stateKey struct{ source, productKey string }
	rebuiltByKey := make(map[stateKey]*domain.LatestState, len(rebuiltStates))
	for _, s := range rebuiltStates {
		rebuiltByKey[stateKey{s.Source, s.ProductKey}] = s
	}

	seen := make(map[stateKey]struct{}, len(liveStates))
	for _, live := range liveStates {
		key := stateKey{live.Source, live.ProductKey}
		seen[key] = struct{}{}
		report.TotalStates++

		divergences := CompareStates(live, rebuiltByKey[key])
		if len(divergences) == 0 {
			report.MatchedStates++
			continue
		}
		report.DivergentStates++
		report.States = append(report.States, StateResult{
			Source:      live.Source,
			ProductKey:  live.ProductKey,
			Divergences: divergences,
		})
	}

	// Rebuilt rows the live layer is missing.
	for _, s := range rebuiltStates {
		key := stateKey{s.Source, s.ProductKey}
		if _, ok := seen[key]; ok {
			continue
		}
		report.TotalStates++
		report.DivergentStates++
		report.States = append(report.States, StateResult{
			Source:      s.Source,
			ProductKey:  s.ProductKey,
			Divergences: []FieldDivergence{{Field: "Presence", Expected: nil, Actual: s}},
		})
	}

	return nil
}

func (v *ReplayVerifier) verifyEvents(ctx context.Context, rebuilt storage.PriceEventStore, report *Report) error {
	liveEvents, err := v.events.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("list live events: %w", err)
	}
	rebuiltEvents, err := rebuilt.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("list rebuilt events: %w", err)
	}

	rebuiltByID := make(map[string]*domain.PriceEvent, len(rebuiltEvents))
	for _, e := range rebuiltEvents {
		rebuiltByID[e.EventID] = e
	}

	seen := make(map[string]struct{}, len(liveEvents))
	for _, live := range liveEvents {
		seen[live.EventID] = struct{}{}
		report.TotalEvents++

		divergences := CompareEvents(live, rebuiltByID[live.EventID])
		if len(divergences) == 0 {
			report.MatchedEvents++
			continue
		}
		report.DivergentEvents++
		report.Events = append(report.Events, EventResult{
			EventID:     live.EventID,
			Divergences: divergences,
		})
	}

	for _, e := range rebuiltEvents {
		if _, ok := seen[e.EventID]; ok {
			continue
		}
		report.TotalEvents++
		report.DivergentEvents++
		report.Events = append(report.Events, EventResult{
			EventID:     e.EventID,
			Divergences: []FieldDivergence{{Field: "Presence", Expected: nil, Actual: e}},
		})
	}

	return nil
}
