package normalize

import (
	"time"

	"pricewatch/internal/domain"
)

// dedupWindow is a short-lived in-memory set of recently seen observation
// tuples. It is a cheap pre-filter in front of the raw layer's uniqueness
// constraint; entries expire by arrival age and total count so memory stays
// bounded no matter how large a cycle is.
type dedupWindow struct {
	maxAge     time.Duration
	maxEntries int
	now        func() time.Time

	seen  map[domain.ObservationKey]time.Time
	order []domain.ObservationKey // insertion order for count eviction
}

func newDedupWindow(maxAge time.Duration, maxEntries int, now func() time.Time) *dedupWindow {
	if now == nil {
		now = time.Now
	}
	return &dedupWindow{
		maxAge:     maxAge,
		maxEntries: maxEntries,
		now:        now,
		seen:       make(map[domain.ObservationKey]time.Time),
	}
}

// observe records the key and reports whether it was already present.
func (w *dedupWindow) observe(key domain.ObservationKey) bool {
	now := w.now()
	w.evict(now)

	if _, dup := w.seen[key]; dup {
		return true
	}

	w.seen[key] = now
	w.order = append(w.order, key)
	w.evict(now)
	return false
}

// evict drops entries older than maxAge and trims to maxEntries.
func (w *dedupWindow) evict(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	for len(w.order) > 0 {
		key := w.order[0]
		at, ok := w.seen[key]
		if ok && at.After(cutoff) && len(w.order) <= w.maxEntries {
			break
		}
		w.order = w.order[1:]
		delete(w.seen, key)
	}
}

func (w *dedupWindow) len() int {
	return len(w.seen)
}
