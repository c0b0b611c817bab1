package idhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ProductKey computes a deterministic product key using SHA256.
// Formula: base58(SHA256(source|normalized_native_id)[:16])
// The native ID is the source-specific identifier of the listing (SKU or
// normalized URL); the same physical listing always maps to the same key,
// across re-fetches and across time.
func ProductKey(source, nativeID string) string {
	data := fmt.Sprintf("%s|%s", source, NormalizeNativeID(nativeID))
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:16])
}

// NormalizeNativeID canonicalizes a source-specific identifier before
// hashing: trims whitespace, lowercases, and strips a URL query string and
// trailing slash so tracking parameters never split a listing's history.
func NormalizeNativeID(nativeID string) string {
	id := strings.TrimSpace(strings.ToLower(nativeID))
	if i := strings.IndexByte(id, '?'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, '#'); i >= 0 {
		id = id[:i]
	}
	return strings.TrimRight(id, "/")
}
