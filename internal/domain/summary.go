package domain

// SourceSummary aggregates the outcome of one fetch cycle for one source.
type SourceSummary struct {
	Source     string
	Succeeded  int // observations accepted into the raw layer
	Failed     int // targets that ended in a FetchFailure
	Rejected   int // observations dropped by validation
	Duplicates int // exact duplicates suppressed
	Events     int // price events emitted
}

// CycleSummary is the user-visible result of a complete fetch cycle.
// A cycle always completes with a summary; one bad target never aborts
// the batch.
type CycleSummary struct {
	FetchID   string // UUID shared by all observations of the cycle
	StartedAt int64  // Unix timestamp in milliseconds
	Duration  int64  // wall time in milliseconds
	Sources   map[string]*SourceSummary
	Errors    []string // storage errors escalated from individual keys
}

// Source returns the summary for a source, creating it on first use.
func (c *CycleSummary) Source(name string) *SourceSummary {
	s, ok := c.Sources[name]
	if !ok {
		s = &SourceSummary{Source: name}
		c.Sources[name] = s
	}
	return s
}

// Totals sums the per-source counters.
func (c *CycleSummary) Totals() SourceSummary {
	var t SourceSummary
	for _, s := range c.Sources {
		t.Succeeded += s.Succeeded
		t.Failed += s.Failed
		t.Rejected += s.Rejected
		t.Duplicates += s.Duplicates
		t.Events += s.Events
	}
	return t
}
