package domain

// Classification labels a price/availability transition.
type Classification string

const (
	ClassStockOut    Classification = "stock_out"
	ClassBackInStock Classification = "back_in_stock"
	ClassPriceDrop   Classification = "price_drop"
	ClassPriceRise   Classification = "price_rise"
)

// String returns the string representation of Classification.
func (c Classification) String() string {
	return string(c)
}

// IsValid checks if the classification is a known value.
func (c Classification) IsValid() bool {
	switch c {
	case ClassStockOut, ClassBackInStock, ClassPriceDrop, ClassPriceRise:
		return true
	}
	return false
}

// PriceEvent is a classified, alert-worthy transition derived from a
// LatestState change. Corresponds to price_events table in ClickHouse.
// Append-only, never mutated or deleted.
type PriceEvent struct {
	EventID        string  // deterministic identity, see idhash.EventID
	Source         string
	ProductKey     string
	OldPrice       float64
	NewPrice       float64
	ChangePct      float64 // (new - old) / old
	Classification Classification
	DetectedAt     int64 // Unix timestamp in milliseconds (event time of trigger)
}
