package domain

// Observation is a single price observation harvested from a competitor
// source. Immutable once written to the raw layer.
// Corresponds to raw_observations table in PostgreSQL.
type Observation struct {
	Source     string  // competitor source name, e.g. "amazon"
	ProductKey string  // stable product identity, see idhash.ProductKey
	Price      float64 // price in canonical currency units
	Currency   string  // canonical currency code after normalization
	Available  bool    // listing availability at observation time
	ObservedAt int64   // Unix timestamp in milliseconds (event time)
	FetchID    string  // UUID of the fetch cycle attempt that produced it
}

// ObservationKey is the raw-layer uniqueness tuple. A retry producing an
// identical tuple is a no-op, not a new fact.
type ObservationKey struct {
	Source     string
	ProductKey string
	ObservedAt int64
	Price      float64
}

// Key returns the deduplication key of the observation.
func (o *Observation) Key() ObservationKey {
	return ObservationKey{
		Source:     o.Source,
		ProductKey: o.ProductKey,
		ObservedAt: o.ObservedAt,
		Price:      o.Price,
	}
}
