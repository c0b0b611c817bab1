package reporting

import (
	"context"
	"sort"
	"time"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

// TopMoverLimit bounds the top-drops and top-rises tables.
const TopMoverLimit = 10

// RecentEventLimit bounds the recent events table.
const RecentEventLimit = 25

// Generator produces reports from stored data.
type Generator struct {
	rawStore    storage.RawObservationStore
	latestStore storage.LatestStateStore
	eventStore  storage.PriceEventStore
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	rawStore storage.RawObservationStore,
	latestStore storage.LatestStateStore,
	eventStore storage.PriceEventStore,
) *Generator {
	return &Generator{
		rawStore:    rawStore,
		latestStore: latestStore,
		eventStore:  eventStore,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete pipeline report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	observations, err := g.rawStore.GetAllOrdered(ctx)
	if err != nil {
		return nil, err
	}

	states, err := g.latestStore.List(ctx)
	if err != nil {
		return nil, err
	}

	events, err := g.eventStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt:    g.now(),
		DataSummary:    g.generateDataSummary(observations, states, events),
		EventBreakdown: g.generateEventBreakdown(events),
		SourceActivity: g.generateSourceActivity(observations, states, events),
		RecentEvents:   g.generateRecentEvents(events),
	}
	report.SourceCount = len(report.SourceActivity)
	report.TopDrops, report.TopRises = g.generateTopMovers(events)

	return report, nil
}

// ExportEvents returns every price event as a flat row, oldest first.
// Unlike the report's recent-events section this is not capped; it backs
// the CSV export.
func (g *Generator) ExportEvents(ctx context.Context) ([]EventRow, error) {
	events, err := g.eventStore.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].DetectedAt != events[j].DetectedAt {
			return events[i].DetectedAt < events[j].DetectedAt
		}
		return events[i].EventID < events[j].EventID
	})

	rows := make([]EventRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, EventRow{
			EventID:        e.EventID,
			Source:         e.Source,
			ProductKey:     e.ProductKey,
			Classification: string(e.Classification),
			OldPrice:       e.OldPrice,
			NewPrice:       e.NewPrice,
			ChangePct:      e.ChangePct,
			DetectedAt:     e.DetectedAt,
		})
	}
	return rows, nil
}

// generateDataSummary computes counts and the observation date range.
func (g *Generator) generateDataSummary(
	observations []*domain.Observation,
	states []*domain.LatestState,
	events []*domain.PriceEvent,
) DataSummary {
	summary := DataSummary{
		TotalObservations: len(observations),
		TrackedProducts:   len(states),
		TotalEvents:       len(events),
	}

	for _, s := range states {
		if !s.Available {
			summary.UnavailableCount++
		}
	}

	if len(observations) > 0 {
		summary.DateRangeStart = observations[0].ObservedAt
		summary.DateRangeEnd = observations[0].ObservedAt
		for _, o := range observations {
			if o.ObservedAt < summary.DateRangeStart {
				summary.DateRangeStart = o.ObservedAt
			}
			if o.ObservedAt > summary.DateRangeEnd {
				summary.DateRangeEnd = o.ObservedAt
			}
		}
	}

	return summary
}

// generateEventBreakdown counts events per classification.
func (g *Generator) generateEventBreakdown(events []*domain.PriceEvent) EventBreakdown {
	var b EventBreakdown
	for _, e := range events {
		switch e.Classification {
		case domain.ClassPriceDrop:
			b.PriceDrops++
		case domain.ClassPriceRise:
			b.PriceRises++
		case domain.ClassStockOut:
			b.StockOuts++
		case domain.ClassBackInStock:
			b.BackInStock++
		}
	}
	return b
}

// generateSourceActivity aggregates per-source counts, sorted by source.
func (g *Generator) generateSourceActivity(
	observations []*domain.Observation,
	states []*domain.LatestState,
	events []*domain.PriceEvent,
) []SourceActivityRow {
	bySource := make(map[string]*SourceActivityRow)
	row := func(source string) *SourceActivityRow {
		r, ok := bySource[source]
		if !ok {
			r = &SourceActivityRow{Source: source}
			bySource[source] = r
		}
		return r
	}

	for _, o := range observations {
		row(o.Source).Observations++
	}
	for _, s := range states {
		row(s.Source).Products++
	}
	for _, e := range events {
		row(e.Source).Events++
	}

	rows := make([]SourceActivityRow, 0, len(bySource))
	for _, r := range bySource {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Source < rows[j].Source })
	return rows
}

// generateTopMovers lists the largest price drops and rises.
func (g *Generator) generateTopMovers(events []*domain.PriceEvent) (drops, rises []MoverRow) {
	for _, e := range events {
		mover := MoverRow{
			Source:     e.Source,
			ProductKey: e.ProductKey,
			OldPrice:   e.OldPrice,
			NewPrice:   e.NewPrice,
			ChangePct:  e.ChangePct,
			DetectedAt: e.DetectedAt,
		}
		switch e.Classification {
		case domain.ClassPriceDrop:
			drops = append(drops, mover)
		case domain.ClassPriceRise:
			rises = append(rises, mover)
		}
	}

	sort.Slice(drops, func(i, j int) bool { return drops[i].ChangePct < drops[j].ChangePct })
	sort.Slice(rises, func(i, j int) bool { return rises[i].ChangePct > rises[j].ChangePct })

	if len(drops) > TopMoverLimit {
		drops = drops[:TopMoverLimit]
	}
	if len(rises) > TopMoverLimit {
		rises = rises[:TopMoverLimit]
	}
	return drops, rises
}

// generateRecentEvents lists the latest events, most recent first.
func (g *Generator) generateRecentEvents(events []*domain.PriceEvent) []EventRow {
	sorted := make([]*domain.PriceEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DetectedAt != sorted[j].DetectedAt {
			return sorted[i].DetectedAt > sorted[j].DetectedAt
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	if len(sorted) > RecentEventLimit {
		sorted = sorted[:RecentEventLimit]
	}

	rows := make([]EventRow, 0, len(sorted))
	for _, e := range sorted {
		rows = append(rows, EventRow{
			EventID:        e.EventID,
			Source:         e.Source,
			ProductKey:     e.ProductKey,
			Classification: string(e.Classification),
			OldPrice:       e.OldPrice,
			NewPrice:       e.NewPrice,
			ChangePct:      e.ChangePct,
			DetectedAt:     e.DetectedAt,
		})
	}
	return rows
}
