package domain

// LatestState holds the most recent accepted observation per
// (source, product_key). Corresponds to latest_state table in PostgreSQL.
// It is the only mutable-in-place record in the system and is overwritten
// exclusively by last-writer-wins on event time.
type LatestState struct {
	Source     string
	ProductKey string
	Price      float64
	Currency   string
	Available  bool
	ObservedAt int64 // Unix timestamp in milliseconds (event time)
	UpdatedAt  int64 // record update timestamp (ms, arrival time)
}
