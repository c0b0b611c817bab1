package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

func testEvent(id, key string, class domain.Classification, detectedAt int64) *domain.PriceEvent {
	return &domain.PriceEvent{
		EventID:        id,
		Source:         "amazon",
		ProductKey:     key,
		OldPrice:       100,
		NewPrice:       85,
		ChangePct:      -0.15,
		Classification: class,
		DetectedAt:     detectedAt,
	}
}

func TestPriceEventStore_AppendAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceEventStore(conn)
	ctx := context.Background()

	e := testEvent("e1", "k1", domain.ClassPriceDrop, 1700000001000)
	require.NoError(t, store.Append(ctx, e))

	retrieved, err := store.GetByProduct(ctx, "amazon", "k1")
	require.NoError(t, err)
	require.Len(t, retrieved, 1)

	assert.Equal(t, e.EventID, retrieved[0].EventID)
	assert.Equal(t, e.OldPrice, retrieved[0].OldPrice)
	assert.Equal(t, e.NewPrice, retrieved[0].NewPrice)
	assert.InDelta(t, e.ChangePct, retrieved[0].ChangePct, 1e-9)
	assert.Equal(t, domain.ClassPriceDrop, retrieved[0].Classification)
	assert.Equal(t, e.DetectedAt, retrieved[0].DetectedAt)
}

func TestPriceEventStore_AppendDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceEventStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testEvent("e1", "k1", domain.ClassPriceDrop, 1700000001000)))

	err := store.Append(ctx, testEvent("e1", "k1", domain.ClassPriceDrop, 1700000001000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPriceEventStore_GetAllOrdered(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceEventStore(conn)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testEvent("e2", "k2", domain.ClassStockOut, 1700000002000)))
	require.NoError(t, store.Append(ctx, testEvent("e1", "k1", domain.ClassPriceDrop, 1700000001000)))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "e1", all[0].EventID)
	assert.Equal(t, "e2", all[1].EventID)
}

func TestPriceEventStore_AppendBatch(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceEventStore(conn)
	ctx := context.Background()

	events := []*domain.PriceEvent{
		testEvent("e1", "k1", domain.ClassPriceDrop, 1700000001000),
		testEvent("e2", "k1", domain.ClassBackInStock, 1700000002000),
		testEvent("e3", "k2", domain.ClassPriceRise, 1700000003000),
	}
	require.NoError(t, store.AppendBatch(ctx, events))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byProduct, err := store.GetByProduct(ctx, "amazon", "k1")
	require.NoError(t, err)
	assert.Len(t, byProduct, 2)
}

func TestPriceEventStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceEventStore(conn)
	ctx := context.Background()

	assert.ErrorIs(t, store.Append(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Append(ctx, &domain.PriceEvent{}), storage.ErrInvalidInput)
}
