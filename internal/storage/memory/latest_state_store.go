package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

// LatestStateStore is an in-memory implementation of
// storage.LatestStateStore. Last-writer-wins by event time, not arrival time.
type LatestStateStore struct {
	mu   sync.Mutex
	data map[string]*domain.LatestState // keyed by (source, product_key)
	now  func() time.Time
}

// NewLatestStateStore creates a new in-memory latest state store.
func NewLatestStateStore() *LatestStateStore {
	return &LatestStateStore{
		data: make(map[string]*domain.LatestState),
		now:  time.Now,
	}
}

// Compile-time interface check.
var _ storage.LatestStateStore = (*LatestStateStore)(nil)

// stateKey generates a unique key for a latest-state row.
func stateKey(source, productKey string) string {
	return fmt.Sprintf("%s|%s", source, productKey)
}

// Upsert folds an observation into the latest state. Replaces only when
// observed_at is strictly newer than the stored row; equal or older
// timestamps are ignored so the fold is idempotent under replay and safe
// under out-of-order delivery.
func (s *LatestStateStore) Upsert(_ context.Context, o *domain.Observation) (bool, *domain.LatestState, error) {
	if o == nil || o.Source == "" || o.ProductKey == "" {
		return false, nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := stateKey(o.Source, o.ProductKey)
	cur, exists := s.data[key]

	if exists {
		if o.ObservedAt <= cur.ObservedAt {
			return false, nil, nil
		}
		prev := *cur
		s.data[key] = newState(o, s.now())
		return true, &prev, nil
	}

	s.data[key] = newState(o, s.now())
	return true, nil, nil
}

// Get retrieves the state for a (source, product_key).
func (s *LatestStateStore) Get(_ context.Context, source, productKey string) (*domain.LatestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.data[stateKey(source, productKey)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	stateCopy := *cur
	return &stateCopy, nil
}

// List retrieves all states, ordered by (source, product_key).
func (s *LatestStateStore) List(_ context.Context) ([]*domain.LatestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.LatestState, 0, len(s.data))
	for _, st := range s.data {
		stateCopy := *st
		result = append(result, &stateCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Source != result[j].Source {
			return result[i].Source < result[j].Source
		}
		return result[i].ProductKey < result[j].ProductKey
	})

	return result, nil
}

func newState(o *domain.Observation, now time.Time) *domain.LatestState {
	return &domain.LatestState{
		Source:     o.Source,
		ProductKey: o.ProductKey,
		Price:      o.Price,
		Currency:   o.Currency,
		Available:  o.Available,
		ObservedAt: o.ObservedAt,
		UpdatedAt:  now.UnixMilli(),
	}
}
