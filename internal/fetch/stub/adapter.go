// Package stub provides a scripted source adapter for tests and the
// offline pipeline binary.
package stub

import (
	"context"
	"sync"

	"pricewatch/internal/domain"
	"pricewatch/internal/fetch"
)

// Response scripts the outcome for one target reference.
type Response struct {
	Observations []*domain.Observation
	// Errs are returned in order for successive attempts; once exhausted,
	// Observations are returned. A nil entry means success at that attempt.
	Errs []error
}

// Adapter is a scripted implementation of fetch.Adapter.
type Adapter struct {
	mu        sync.Mutex
	responses map[string]*Response
	calls     map[string]int
}

// NewAdapter creates an empty stub adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		responses: make(map[string]*Response),
		calls:     make(map[string]int),
	}
}

// Compile-time interface check.
var _ fetch.Adapter = (*Adapter)(nil)

// Script sets the scripted response for a target reference.
func (a *Adapter) Script(ref string, r Response) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[ref] = &r
}

// Calls returns how many fetch attempts were made for a target reference.
func (a *Adapter) Calls(ref string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[ref]
}

// Fetch implements fetch.Adapter.
func (a *Adapter) Fetch(ctx context.Context, target domain.Target) ([]*domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	attempt := a.calls[target.Ref]
	a.calls[target.Ref] = attempt + 1

	r, ok := a.responses[target.Ref]
	if !ok {
		return nil, fetch.Errf(domain.ErrKindNotFound, "unscripted target %s", target.Ref)
	}

	if attempt < len(r.Errs) && r.Errs[attempt] != nil {
		return nil, r.Errs[attempt]
	}

	// Return copies so callers can mutate freely.
	out := make([]*domain.Observation, len(r.Observations))
	for i, o := range r.Observations {
		obsCopy := *o
		out[i] = &obsCopy
	}
	return out, nil
}
