package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pricewatch/internal/domain"
	"pricewatch/internal/storage"
)

// PriceEventStore implements storage.PriceEventStore using ClickHouse.
// Append checks for the event ID before inserting so callers still get
// ErrDuplicateKey semantics; merges clean up any rows that race past the
// check.
type PriceEventStore struct {
	conn *Conn
}

// NewPriceEventStore creates a new PriceEventStore.
func NewPriceEventStore(conn *Conn) *PriceEventStore {
	return &PriceEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceEventStore = (*PriceEventStore)(nil)

// Append adds a price event. Returns ErrDuplicateKey if the event ID
// already exists.
func (s *PriceEventStore) Append(ctx context.Context, e *domain.PriceEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM price_events FINAL WHERE event_id = ?
	`, e.EventID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check price event existence: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO price_events (
			event_id, source, product_key, old_price, new_price,
			change_pct, classification, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.EventID,
		e.Source,
		e.ProductKey,
		e.OldPrice,
		e.NewPrice,
		e.ChangePct,
		string(e.Classification),
		e.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert price event: %w", err)
	}
	return nil
}

// AppendBatch adds multiple price events in one insert. Duplicate IDs are
// absorbed by the merge tree rather than rejected.
func (s *PriceEventStore) AppendBatch(ctx context.Context, events []*domain.PriceEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_events (
			event_id, source, product_key, old_price, new_price,
			change_pct, classification, detected_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare price event batch: %w", err)
	}

	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		err := batch.Append(
			e.EventID,
			e.Source,
			e.ProductKey,
			e.OldPrice,
			e.NewPrice,
			e.ChangePct,
			string(e.Classification),
			e.DetectedAt,
		)
		if err != nil {
			return fmt.Errorf("append to price event batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send price event batch: %w", err)
	}
	return nil
}

// GetByProduct retrieves events for a (source, product_key), ordered by
// detection time.
func (s *PriceEventStore) GetByProduct(ctx context.Context, source, productKey string) ([]*domain.PriceEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT event_id, source, product_key, old_price, new_price,
		       change_pct, classification, detected_at
		FROM price_events FINAL
		WHERE source = ? AND product_key = ?
		ORDER BY detected_at ASC, event_id ASC
	`, source, productKey)
	if err != nil {
		return nil, fmt.Errorf("get price events by product: %w", err)
	}
	defer rows.Close()

	return scanPriceEvents(rows)
}

// GetAll retrieves all events, ordered by detection time.
func (s *PriceEventStore) GetAll(ctx context.Context) ([]*domain.PriceEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT event_id, source, product_key, old_price, new_price,
		       change_pct, classification, detected_at
		FROM price_events FINAL
		ORDER BY detected_at ASC, event_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("get all price events: %w", err)
	}
	defer rows.Close()

	return scanPriceEvents(rows)
}

// scanPriceEvents scans multiple rows into a slice of PriceEvent.
func scanPriceEvents(rows driver.Rows) ([]*domain.PriceEvent, error) {
	var events []*domain.PriceEvent

	for rows.Next() {
		var e domain.PriceEvent
		var classification string

		err := rows.Scan(
			&e.EventID,
			&e.Source,
			&e.ProductKey,
			&e.OldPrice,
			&e.NewPrice,
			&e.ChangePct,
			&classification,
			&e.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price event row: %w", err)
		}

		e.Classification = domain.Classification(classification)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price event rows: %w", err)
	}

	return events, nil
}
