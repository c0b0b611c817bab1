// Package ingest runs the pipeline continuously: scheduled fetch cycles
// plus push feeds folded through the same normalize and detect path.
package ingest

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"pricewatch/internal/domain"
	"pricewatch/internal/normalize"
	"pricewatch/internal/orchestrator"
	"pricewatch/internal/pricechange"
)

// DefaultCycleInterval is the default spacing between fetch cycles.
const DefaultCycleInterval = 5 * time.Minute

// FeedSource is a push stream of observations, typically a WebSocket feed.
type FeedSource interface {
	Subscribe(ctx context.Context) (<-chan *domain.Observation, error)
}

// Runner drives continuous ingestion. Fetch cycles run on a ticker through
// the orchestrator; feed observations are folded as they arrive. The feed
// path runs on the Runner's own goroutine, so per-key serialization holds
// without lanes.
type Runner struct {
	orchestrator  *orchestrator.Orchestrator
	targets       []domain.Target
	feeds         []FeedSource
	normalizer    *normalize.Normalizer
	engine        *pricechange.Engine
	cycleInterval time.Duration
	logger        *log.Logger

	stats RunnerStats
}

// RunnerStats counts work done since the runner started.
type RunnerStats struct {
	CyclesRun          int64
	FeedObservations   int64
	FeedEventsDetected int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Orchestrator  *orchestrator.Orchestrator
	Targets       []domain.Target
	Feeds         []FeedSource
	Normalizer    *normalize.Normalizer
	Engine        *pricechange.Engine
	CycleInterval time.Duration // default 5m
	Logger        *log.Logger
}

// NewRunner creates a new continuous ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	cycleInterval := opts.CycleInterval
	if cycleInterval == 0 {
		cycleInterval = DefaultCycleInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		orchestrator:  opts.Orchestrator,
		targets:       opts.Targets,
		feeds:         opts.Feeds,
		normalizer:    opts.Normalizer,
		engine:        opts.Engine,
		cycleInterval: cycleInterval,
		logger:        logger,
	}
}

// Run starts continuous ingestion. It blocks until the context is
// cancelled. A closed feed channel is treated as fatal; fetch cycle
// failures are logged and the next cycle proceeds.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("Starting ingestion runner...")

	feedCh, err := r.subscribeFeeds(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.cycleInterval)
	defer ticker.Stop()

	r.logger.Printf("Runner started, cycle interval: %v, targets: %d, feeds: %d",
		r.cycleInterval, len(r.targets), len(r.feeds))

	// First cycle fires immediately so a fresh deployment has data before
	// the first tick.
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Runner stopping...")
			return ctx.Err()

		case observation, ok := <-feedCh:
			if !ok {
				r.logger.Println("Feed channel closed")
				return errors.New("feed channel closed")
			}
			r.handleFeedObservation(ctx, observation)

		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// Stats returns counters accumulated so far. Only meaningful after Run
// has returned, or from the goroutine driving Run.
func (r *Runner) Stats() RunnerStats {
	return r.stats
}

// subscribeFeeds merges all feed subscriptions into one channel. Returns a
// nil channel when no feeds are configured, which blocks forever in select.
func (r *Runner) subscribeFeeds(ctx context.Context) (<-chan *domain.Observation, error) {
	if len(r.feeds) == 0 {
		return nil, nil
	}

	merged := make(chan *domain.Observation)
	var wg sync.WaitGroup

	for _, feed := range r.feeds {
		ch, err := feed.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(ch <-chan *domain.Observation) {
			defer wg.Done()
			for observation := range ch {
				select {
				case merged <- observation:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	r.logger.Printf("Subscribed to %d feeds", len(r.feeds))

	go func() {
		wg.Wait()
		close(merged)
	}()

	return merged, nil
}

// handleFeedObservation folds one pushed observation and runs change
// detection on transitions that updated the latest state.
func (r *Runner) handleFeedObservation(ctx context.Context, observation *domain.Observation) {
	r.stats.FeedObservations++

	res, err := r.normalizer.Process(ctx, observation)
	if err != nil {
		r.logger.Printf("Error folding feed observation %s/%s: %v",
			observation.Source, observation.ProductKey, err)
		return
	}
	if res.Status == normalize.StatusRejected {
		r.logger.Printf("Rejected feed observation %s/%s: %s",
			observation.Source, observation.ProductKey, res.Reason)
		return
	}
	if res.Status != normalize.StatusAccepted || !res.Changed || res.Prev == nil {
		return
	}

	folded := res.Normalized
	cur := &domain.LatestState{
		Source:     folded.Source,
		ProductKey: folded.ProductKey,
		Price:      folded.Price,
		Currency:   folded.Currency,
		Available:  folded.Available,
		ObservedAt: folded.ObservedAt,
	}
	event, err := r.engine.Detect(ctx, res.Prev, cur)
	if err != nil {
		r.logger.Printf("Error detecting change for %s/%s: %v",
			observation.Source, observation.ProductKey, err)
		return
	}
	if event != nil {
		r.stats.FeedEventsDetected++
	}
}

// runCycle runs one fetch cycle if the runner has targets.
func (r *Runner) runCycle(ctx context.Context) {
	if r.orchestrator == nil || len(r.targets) == 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	r.stats.CyclesRun++
	summary, err := r.orchestrator.RunCycle(ctx, r.targets)
	if err != nil {
		r.logger.Printf("Cycle %s aborted: %v", summary.FetchID, err)
		return
	}
	if len(summary.Errors) > 0 {
		r.logger.Printf("Cycle %s finished with %d errors", summary.FetchID, len(summary.Errors))
	}
}
