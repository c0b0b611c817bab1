// Package verification checks that the derived layers match what a replay
// of the raw layer produces. A divergence means the live pipeline and the
// rebuild disagree, which breaks the raw layer's source-of-truth guarantee.
package verification

import (
	"context"
	"math"

	"pricewatch/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between live and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // live value
	Actual   interface{} // replayed value
}

// StateResult contains the comparison of one latest-state row.
type StateResult struct {
	Source      string
	ProductKey  string
	Match       bool
	Divergences []FieldDivergence
}

// EventResult contains the comparison of one price event.
type EventResult struct {
	EventID     string
	Match       bool
	Divergences []FieldDivergence
}

// Report contains the outcome of a full verification pass.
type Report struct {
	TotalStates     int
	MatchedStates   int
	DivergentStates int
	TotalEvents     int
	MatchedEvents   int
	DivergentEvents int
	States          []StateResult // divergent rows only
	Events          []EventResult // divergent rows only
}

// Match reports whether everything agreed.
func (r *Report) Match() bool {
	return r.DivergentStates == 0 && r.DivergentEvents == 0
}

// Verifier compares live derived layers against replayed ones.
type Verifier interface {
	Verify(ctx context.Context) (*Report, error)
}

// CompareStates compares a live latest-state row against its replayed
// counterpart. Either side may be nil when the row exists on one side only.
func CompareStates(live, replayed *domain.LatestState) []FieldDivergence {
	if live == nil || replayed == nil {
		return []FieldDivergence{{Field: "Presence", Expected: live, Actual: replayed}}
	}

	var divergences []FieldDivergence

	if !floatEquals(live.Price, replayed.Price) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Price",
			Expected: live.Price,
			Actual:   replayed.Price,
		})
	}

	if live.Currency != replayed.Currency {
		divergences = append(divergences, FieldDivergence{
			Field:    "Currency",
			Expected: live.Currency,
			Actual:   replayed.Currency,
		})
	}

	if live.Available != replayed.Available {
		divergences = append(divergences, FieldDivergence{
			Field:    "Available",
			Expected: live.Available,
			Actual:   replayed.Available,
		})
	}

	if live.ObservedAt != replayed.ObservedAt {
		divergences = append(divergences, FieldDivergence{
			Field:    "ObservedAt",
			Expected: live.ObservedAt,
			Actual:   replayed.ObservedAt,
		})
	}

	return divergences
}

// CompareEvents compares a live price event against its replayed
// counterpart by event ID.
func CompareEvents(live, replayed *domain.PriceEvent) []FieldDivergence {
	if live == nil || replayed == nil {
		return []FieldDivergence{{Field: "Presence", Expected: live, Actual: replayed}}
	}

	var divergences []FieldDivergence

	if !floatEquals(live.OldPrice, replayed.OldPrice) {
		divergences = append(divergences, FieldDivergence{
			Field:    "OldPrice",
			Expected: live.OldPrice,
			Actual:   replayed.OldPrice,
		})
	}

	if !floatEquals(live.NewPrice, replayed.NewPrice) {
		divergences = append(divergences, FieldDivergence{
			Field:    "NewPrice",
			Expected: live.NewPrice,
			Actual:   replayed.NewPrice,
		})
	}

	if !floatEquals(live.ChangePct, replayed.ChangePct) {
		divergences = append(divergences, FieldDivergence{
			Field:    "ChangePct",
			Expected: live.ChangePct,
			Actual:   replayed.ChangePct,
		})
	}

	if live.Classification != replayed.Classification {
		divergences = append(divergences, FieldDivergence{
			Field:    "Classification",
			Expected: live.Classification,
			Actual:   replayed.Classification,
		})
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
