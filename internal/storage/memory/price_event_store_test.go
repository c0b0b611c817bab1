package memory

import (
	"context"
	"errors"
	"testing"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

func event(id, source, key string, oldPrice, newPrice float64, detectedAt int64) *domain.PriceEvent {
	return &domain.PriceEvent{
		EventID:        id,
		Source:         source,
		ProductKey:     key,
		OldPrice:       oldPrice,
		NewPrice:       newPrice,
		ChangePct:      (newPrice - oldPrice) / oldPrice,
		Classification: domain.ClassPriceDrop,
		DetectedAt:     detectedAt,
	}
}

func TestPriceEventStore_AppendAndGet(t *testing.T) {
	s := NewPriceEventStore()
	ctx := context.Background()

	if err := s.Append(ctx, event("e1", "amazon", "p1", 100, 85, 2000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, event("e2", "amazon", "p1", 85, 70, 3000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := s.GetByProduct(ctx, "amazon", "p1")
	if err != nil {
		t.Fatalf("GetByProduct failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].EventID != "e1" || got[1].EventID != "e2" {
		t.Errorf("Expected detected_at ASC order, got [%s, %s]", got[0].EventID, got[1].EventID)
	}
}

func TestPriceEventStore_DuplicateEventID(t *testing.T) {
	s := NewPriceEventStore()
	ctx := context.Background()

	if err := s.Append(ctx, event("e1", "amazon", "p1", 100, 85, 2000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	err := s.Append(ctx, event("e1", "amazon", "p1", 100, 85, 2000))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPriceEventStore_GetAllOrdered(t *testing.T) {
	s := NewPriceEventStore()
	ctx := context.Background()

	s.Append(ctx, event("e2", "amazon", "p1", 85, 70, 3000))
	s.Append(ctx, event("e1", "mercadolibre", "p2", 100, 85, 2000))

	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].EventID != "e1" {
		t.Errorf("Expected earliest detected_at first, got %s", got[0].EventID)
	}
}
