package domain

// ErrorKind categorizes fetch failures for retry decisions and reporting.
type ErrorKind string

const (
	ErrKindTimeout       ErrorKind = "timeout"
	ErrKindUnreachable   ErrorKind = "unreachable"
	ErrKindBlocked       ErrorKind = "blocked"
	ErrKindNotFound      ErrorKind = "not_found"
	ErrKindProtocolError ErrorKind = "protocol_error"
)

// Retryable reports whether a failure of this kind is transient.
// Timeouts, refused connections and throttling are retried; malformed
// targets and missing listings are surfaced immediately.
func (k ErrorKind) Retryable() bool {
	return k == ErrKindTimeout || k == ErrKindUnreachable || k == ErrKindBlocked
}

// Target identifies one unit of fetch work for a source adapter.
type Target struct {
	Source   string // source name the adapter belongs to
	Ref      string // source-specific reference: URL, SKU, category page
	Category string // optional product category hint
}

// FetchFailure is the terminal record for a target that produced no
// observations, emitted after retries are exhausted or immediately for
// permanent failures.
type FetchFailure struct {
	Source   string
	Target   string
	Kind     ErrorKind
	Attempts int
	Message  string
}

// FetchAttempt is transient per-attempt bookkeeping used for retry and
// backoff decisions. Kept only in a bounded in-memory window; never
// persisted to the layered store.
type FetchAttempt struct {
	Source    string
	Target    string
	Attempt   int
	Kind      ErrorKind // zero value when the attempt succeeded
	OK        bool
	Timestamp int64 // Unix timestamp in milliseconds
}
