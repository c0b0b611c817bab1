package memory

import (
	"context"
	"sort"
	"sync"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

// PriceEventStore is an in-memory implementation of storage.PriceEventStore.
type PriceEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceEvent // keyed by event_id
}

// NewPriceEventStore creates a new in-memory price event store.
func NewPriceEventStore() *PriceEventStore {
	return &PriceEventStore{
		data: make(map[string]*domain.PriceEvent),
	}
}

// Compile-time interface check.
var _ storage.PriceEventStore = (*PriceEventStore)(nil)

// Append adds an event. Returns ErrDuplicateKey if event_id exists.
func (s *PriceEventStore) Append(_ context.Context, e *domain.PriceEvent) error {
	if e == nil || e.EventID == "" || e.ProductKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	s.data[e.EventID] = &eventCopy
	return nil
}

// GetByProduct retrieves all events for a (source, product_key), ordered by
// detected_at ASC.
func (s *PriceEventStore) GetByProduct(_ context.Context, source, productKey string) ([]*domain.PriceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceEvent
	for _, e := range s.data {
		if e.Source == source && e.ProductKey == productKey {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sortPriceEvents(result)
	return result, nil
}

// GetAll retrieves every event ordered by detected_at ASC.
func (s *PriceEventStore) GetAll(_ context.Context) ([]*domain.PriceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PriceEvent, 0, len(s.data))
	for _, e := range s.data {
		eventCopy := *e
		result = append(result, &eventCopy)
	}

	sortPriceEvents(result)
	return result, nil
}

func sortPriceEvents(events []*domain.PriceEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].DetectedAt != events[j].DetectedAt {
			return events[i].DetectedAt < events[j].DetectedAt
		}
		return events[i].EventID < events[j].EventID
	})
}
