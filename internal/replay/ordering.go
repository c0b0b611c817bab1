package replay

import (
	"sort"

	"pricewatch/internal/domain"
)

// SortObservations orders observations by
// (observed_at ASC, source ASC, product_key ASC, price ASC).
// Replay folds in this order regardless of how the raw layer returns rows,
// so a rebuild produces the same states and events every time.
func SortObservations(observations []*domain.Observation) {
	sort.Slice(observations, func(i, j int) bool {
		return compareObservations(observations[i], observations[j]) < 0
	})
}

// compareObservations returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (observed_at ASC, source ASC, product_key ASC, price ASC)
func compareObservations(a, b *domain.Observation) int {
	if a.ObservedAt != b.ObservedAt {
		if a.ObservedAt < b.ObservedAt {
			return -1
		}
		return 1
	}
	if a.Source != b.Source {
		if a.Source < b.Source {
			return -1
		}
		return 1
	}
	if a.ProductKey != b.ProductKey {
		if a.ProductKey < b.ProductKey {
			return -1
		}
		return 1
	}
	if a.Price != b.Price {
		if a.Price < b.Price {
			return -1
		}
		return 1
	}
	return 0
}
