package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// EventID computes a deterministic price event identity using SHA256.
// Formula: SHA256(source|product_key|old_price|new_price|observed_at)
// Returns hex-encoded hash (64 characters). The inputs are all taken from
// the transition itself, never from wall-clock detection time, so replaying
// the raw layer reproduces identical event IDs and the gold layer stays
// idempotent under rebuild.
func EventID(source, productKey string, oldPrice, newPrice float64, observedAt int64) string {
	data := fmt.Sprintf("%s|%s|%.10f|%.10f|%d",
		source,
		productKey,
		oldPrice,
		newPrice,
		observedAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
