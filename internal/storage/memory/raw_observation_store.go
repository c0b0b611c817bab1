package memory

import (
	"context"
	"sort"
	"sync"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

// RawObservationStore is an in-memory implementation of
// storage.RawObservationStore. The bronze layer is append-only; duplicates
// of the uniqueness tuple are rejected, never overwritten.
type RawObservationStore struct {
	mu   sync.RWMutex
	data map[domain.ObservationKey]*domain.Observation
	// insertion order preserved for stable iteration before sorting
	order []domain.ObservationKey
}

// NewRawObservationStore creates a new in-memory raw observation store.
func NewRawObservationStore() *RawObservationStore {
	return &RawObservationStore{
		data: make(map[domain.ObservationKey]*domain.Observation),
	}
}

// Compile-time interface check.
var _ storage.RawObservationStore = (*RawObservationStore)(nil)

// Append adds an observation. Returns ErrDuplicateKey if the tuple exists.
func (s *RawObservationStore) Append(_ context.Context, o *domain.Observation) error {
	if o == nil || o.Source == "" || o.ProductKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := o.Key()
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	obsCopy := *o
	s.data[key] = &obsCopy
	s.order = append(s.order, key)
	return nil
}

// GetByProduct retrieves all observations for a (source, product_key),
// ordered by observed_at ASC.
func (s *RawObservationStore) GetByProduct(_ context.Context, source, productKey string) ([]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Observation
	for _, o := range s.data {
		if o.Source == source && o.ProductKey == productKey {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sortObservations(result)
	return result, nil
}

// GetAllOrdered retrieves every observation ordered by observed_at ASC with
// deterministic tie-breaking, for replay.
func (s *RawObservationStore) GetAllOrdered(_ context.Context) ([]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Observation, 0, len(s.data))
	for _, key := range s.order {
		obsCopy := *s.data[key]
		result = append(result, &obsCopy)
	}

	sortObservations(result)
	return result, nil
}

// sortObservations orders by (observed_at, source, product_key, price) so
// replay order is deterministic regardless of arrival order.
func sortObservations(obs []*domain.Observation) {
	sort.Slice(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if a.ObservedAt != b.ObservedAt {
			return a.ObservedAt < b.ObservedAt
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.ProductKey != b.ProductKey {
			return a.ProductKey < b.ProductKey
		}
		return a.Price < b.Price
	})
}
