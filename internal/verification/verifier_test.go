package verification_test

import (
	"context"
	"testing"

	"pricewatch/internal/domain"
	"pricewatch/internal/idhash"
	"pricewatch/internal/pricechange"
	"pricewatch/internal/storage/memory"
	"pricewatch/internal/verification"
)

type pipelineState struct {
	raw    *memory.RawObservationStore
	latest *memory.LatestStateStore
	events *memory.PriceEventStore
}

// runLive folds observations through the live path: append raw, upsert
// latest, detect on change.
func runLive(t *testing.T, observations ...*domain.Observation) *pipelineState {
	t.Helper()
	p := &pipelineState{
		raw:    memory.NewRawObservationStore(),
		latest: memory.NewLatestStateStore(),
		events: memory.NewPriceEventStore(),
	}
	engine := pricechange.NewEngine(pricechange.EngineOptions{EventStore: p.events})
	ctx := context.Background()

	for _, o := range observations {
		if err := p.raw.Append(ctx, o); err != nil {
			t.Fatalf("Seed append failed: %v", err)
		}
		changed, prev, err := p.latest.Upsert(ctx, o)
		if err != nil {
			t.Fatalf("Seed upsert failed: %v", err)
		}
		if changed && prev != nil {
			cur := &domain.LatestState{
				Source: o.Source, ProductKey: o.ProductKey,
				Price: o.Price, Currency: o.Currency,
				Available: o.Available, ObservedAt: o.ObservedAt,
			}
			if _, err := engine.Detect(ctx, prev, cur); err != nil {
				t.Fatalf("Seed detect failed: %v", err)
			}
		}
	}
	return p
}

func liveObservation(key string, price float64, available bool, observedAt int64) *domain.Observation {
	return &domain.Observation{
		Source:     "amazon",
		ProductKey: key,
		Price:      price,
		Currency:   "USD",
		Available:  available,
		ObservedAt: observedAt,
		FetchID:    "f1",
	}
}

func verify(t *testing.T, p *pipelineState) *verification.Report {
	t.Helper()
	v := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		RawStore:    p.raw,
		LatestStore: p.latest,
		EventStore:  p.events,
	})
	report, err := v.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	return report
}

func TestReplayVerifier_CleanPipelineMatches(t *testing.T) {
	p := runLive(t,
		liveObservation("k1", 100, true, 1000),
		liveObservation("k1", 85, true, 2000),
		liveObservation("k2", 50, true, 1000),
		liveObservation("k2", 50, false, 2000),
	)

	report := verify(t, p)

	if !report.Match() {
		t.Fatalf("Expected clean verification, got %+v", report)
	}
	if report.TotalStates != 2 || report.MatchedStates != 2 {
		t.Errorf("State counts = %d/%d, want 2/2", report.MatchedStates, report.TotalStates)
	}
	if report.TotalEvents != 2 || report.MatchedEvents != 2 {
		t.Errorf("Event counts = %d/%d, want 2/2", report.MatchedEvents, report.TotalEvents)
	}
}

func TestReplayVerifier_DetectsTamperedState(t *testing.T) {
	p := runLive(t,
		liveObservation("k1", 100, true, 1000),
		liveObservation("k1", 85, true, 2000),
	)

	// Corrupt the live silver layer with a row the raw history cannot produce.
	if _, _, err := p.latest.Upsert(context.Background(), liveObservation("k1", 999, true, 3000)); err != nil {
		t.Fatal(err)
	}

	report := verify(t, p)

	if report.Match() {
		t.Fatal("Tampered state passed verification")
	}
	if report.DivergentStates != 1 {
		t.Errorf("Expected 1 divergent state, got %d", report.DivergentStates)
	}
	if len(report.States) != 1 || report.States[0].ProductKey != "k1" {
		t.Errorf("Divergence misattributed: %+v", report.States)
	}
}

func TestReplayVerifier_DetectsMissingEvent(t *testing.T) {
	p := runLive(t,
		liveObservation("k1", 100, true, 1000),
		liveObservation("k1", 85, true, 2000),
	)

	// An event exists in the rebuild but was lost from the live gold layer.
	p.events = memory.NewPriceEventStore()

	report := verify(t, p)

	if report.Match() {
		t.Fatal("Missing event passed verification")
	}
	if report.DivergentEvents != 1 {
		t.Errorf("Expected 1 divergent event, got %d", report.DivergentEvents)
	}
}

func TestReplayVerifier_DetectsForeignEvent(t *testing.T) {
	p := runLive(t, liveObservation("k1", 100, true, 1000))

	// A fabricated event no replay would emit.
	foreign := &domain.PriceEvent{
		EventID:        idhash.EventID("amazon", "k1", 100, 50, 5000),
		Source:         "amazon",
		ProductKey:     "k1",
		OldPrice:       100,
		NewPrice:       50,
		ChangePct:      -0.5,
		Classification: domain.ClassPriceDrop,
		DetectedAt:     5000,
	}
	if err := p.events.Append(context.Background(), foreign); err != nil {
		t.Fatal(err)
	}

	report := verify(t, p)

	if report.Match() {
		t.Fatal("Foreign event passed verification")
	}
	if len(report.Events) != 1 || report.Events[0].EventID != foreign.EventID {
		t.Errorf("Divergence misattributed: %+v", report.Events)
	}
}

func TestReplayVerifier_EmptyPipeline(t *testing.T) {
	p := &pipelineState{
		raw:    memory.NewRawObservationStore(),
		latest: memory.NewLatestStateStore(),
		events: memory.NewPriceEventStore(),
	}

	report := verify(t, p)
	if !report.Match() || report.TotalStates != 0 || report.TotalEvents != 0 {
		t.Errorf("Empty pipeline should verify clean, got %+v", report)
	}
}
