// Package orchestrator coordinates one ingestion cycle end to end.
// Flow: fetch → dedup/normalize → fold → change detection
package orchestrator

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pricewatch/internal/domain"
	"pricewatch/internal/fetch"
	"pricewatch/internal/normalize"
	"pricewatch/internal/observability"
	"pricewatch/internal/pricechange"
	"pricewatch/internal/replay"
)

// DefaultLanes is the number of per-key processing lanes.
const DefaultLanes = 8

// Orchestrator runs fetch cycles. Observations are routed onto lanes by
// product key; each lane buffers its share of the cycle and folds it in
// event-time order on a single goroutine. Two observations of the same
// product are never folded concurrently, and a source that delivers a
// key's observations out of order produces the same states and events an
// in-order delivery would.
type Orchestrator struct {
	scheduler  *fetch.Scheduler
	normalizer *normalize.Normalizer
	engine     *pricechange.Engine
	lanes      int
	verbose    bool
	logger     *log.Logger
}

// Options for creating Orchestrator.
type Options struct {
	Scheduler  *fetch.Scheduler
	Normalizer *normalize.Normalizer
	Engine     *pricechange.Engine
	Lanes      int // default 8
	Verbose    bool
	Logger     *log.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	lanes := opts.Lanes
	if lanes <= 0 {
		lanes = DefaultLanes
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Orchestrator{
		scheduler:  opts.Scheduler,
		normalizer: opts.Normalizer,
		engine:     opts.Engine,
		lanes:      lanes,
		verbose:    opts.Verbose,
		logger:     logger,
	}
}

// RunCycle fetches all targets once and folds the results through the
// layered store. It always returns a summary; the error is reserved for
// storage failures that abort processing.
func (o *Orchestrator) RunCycle(ctx context.Context, targets []domain.Target) (*domain.CycleSummary, error) {
	fetchID := uuid.NewString()
	started := time.Now()

	summary := &domain.CycleSummary{
		FetchID:   fetchID,
		StartedAt: started.UnixMilli(),
		Sources:   make(map[string]*domain.SourceSummary),
	}
	for _, t := range targets {
		summary.Source(t.Source)
	}

	o.log("Cycle %s: fetching %d targets", fetchID, len(targets))
	results := o.scheduler.Run(ctx, targets, fetchID)

	var mu sync.Mutex

	laneBuf := make([][]*domain.Observation, o.lanes)
	for r := range results {
		if r.Failure != nil {
			src := summary.Source(r.Failure.Source)
			src.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("fetch %s/%s: %s (%s)",
				r.Failure.Source, r.Failure.Target, r.Failure.Message, r.Failure.Kind))
			continue
		}
		observation := r.Observation
		lane := o.laneFor(observation.Source, observation.ProductKey)
		laneBuf[lane] = append(laneBuf[lane], observation)
	}

	// Each lane folds in the exact order a rebuild from the raw layer
	// uses. An adapter that returns a key's observations out of order
	// would otherwise fold the stale row last, drop it, and leave the
	// gold layer dependent on arrival order.
	var wg sync.WaitGroup
	for _, buf := range laneBuf {
		if len(buf) == 0 {
			continue
		}
		wg.Add(1)
		go func(buf []*domain.Observation) {
			defer wg.Done()
			replay.SortObservations(buf)
			for _, observation := range buf {
				if ctx.Err() != nil {
					return
				}
				o.processObservation(ctx, observation, summary, &mu)
			}
		}(buf)
	}
	wg.Wait()

	summary.Duration = time.Since(started).Milliseconds()

	status := "success"
	if ctx.Err() != nil || len(summary.Errors) > 0 {
		status = "error"
	}
	observability.RecordCycle(status, time.Since(started).Seconds())

	totals := summary.Totals()
	o.log("Cycle %s done in %dms: %d succeeded, %d failed, %d rejected, %d duplicates, %d events",
		fetchID, summary.Duration,
		totals.Succeeded, totals.Failed, totals.Rejected, totals.Duplicates, totals.Events)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// processObservation folds one observation and runs change detection on
// transitions that updated the latest state.
func (o *Orchestrator) processObservation(ctx context.Context, observation *domain.Observation, summary *domain.CycleSummary, mu *sync.Mutex) {
	res, err := o.normalizer.Process(ctx, observation)
	if err != nil {
		mu.Lock()
		summary.Source(observation.Source).Failed++
		summary.Errors = append(summary.Errors, fmt.Sprintf("fold %s/%s: %v",
			observation.Source, observation.ProductKey, err))
		mu.Unlock()
		return
	}

	var event *domain.PriceEvent
	if res.Status == normalize.StatusAccepted && res.Changed && res.Prev != nil {
		folded := res.Normalized
		cur := &domain.LatestState{
			Source:     folded.Source,
			ProductKey: folded.ProductKey,
			Price:      folded.Price,
			Currency:   folded.Currency,
			Available:  folded.Available,
			ObservedAt: folded.ObservedAt,
		}
		event, err = o.engine.Detect(ctx, res.Prev, cur)
		if err != nil {
			mu.Lock()
			summary.Errors = append(summary.Errors, fmt.Sprintf("detect %s/%s: %v",
				observation.Source, observation.ProductKey, err))
			mu.Unlock()
		}
	}

	mu.Lock()
	defer mu.Unlock()
	src := summary.Source(observation.Source)
	switch res.Status {
	case normalize.StatusAccepted:
		src.Succeeded++
		observability.RecordObservationStored()
	case normalize.StatusDuplicate:
		src.Succeeded++
		src.Duplicates++
		observability.RecordDuplicate()
	case normalize.StatusRejected:
		src.Rejected++
		observability.RecordRejection(res.Reason)
	}
	if event != nil {
		src.Events++
		observability.RecordEventDetected(string(event.Classification))
	}
}

// laneFor maps a product onto a fixed lane. The hash covers source too so
// the same native ID on two sources can still process in parallel.
func (o *Orchestrator) laneFor(source, productKey string) int {
	h := fnv.New32a()
	h.Write([]byte(source))
	h.Write([]byte{'|'})
	h.Write([]byte(productKey))
	return int(h.Sum32() % uint32(o.lanes))
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		o.logger.Printf("[orchestrator] "+format, args...)
	}
}
