package fetch

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/internal/domain"
	"pricewatch/internal/observability"
)

// Default scheduler limits, used when a source's configuration leaves a
// field zero.
const (
	DefaultMaxConcurrency     = 4
	DefaultRateLimitPerMinute = 60
	DefaultMaxRetries         = 3
	DefaultBackoffBase        = 500 * time.Millisecond
	DefaultMaxBackoff         = 30 * time.Second
	DefaultAttemptTimeout     = 30 * time.Second
	DefaultAttemptWindow      = 256 // FetchAttempt records retained per scheduler
)

// SourceLimits bounds fetch behavior for a single source.
type SourceLimits struct {
	MaxConcurrency     int           // max in-flight fetches
	RateLimitPerMinute int           // token-bucket refill rate
	MaxRetries         int           // retries after the first attempt, transient errors only
	BackoffBase        time.Duration // initial retry delay, doubled per attempt
	AttemptTimeout     time.Duration // hard per-attempt timeout
}

func (l SourceLimits) withDefaults() SourceLimits {
	if l.MaxConcurrency <= 0 {
		l.MaxConcurrency = DefaultMaxConcurrency
	}
	if l.RateLimitPerMinute <= 0 {
		l.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if l.MaxRetries < 0 {
		l.MaxRetries = DefaultMaxRetries
	}
	if l.BackoffBase <= 0 {
		l.BackoffBase = DefaultBackoffBase
	}
	if l.AttemptTimeout <= 0 {
		l.AttemptTimeout = DefaultAttemptTimeout
	}
	return l
}

// Result is one element of the scheduler's output stream: either an
// observation or a terminal fetch failure, never both.
type Result struct {
	Observation *domain.Observation
	Failure     *domain.FetchFailure
}

// Scheduler fans a batch of targets out to source adapters under per-source
// concurrency and rate limits. It owns retry/backoff and failure
// classification; it never writes to storage.
type Scheduler struct {
	adapters map[string]Adapter
	limits   map[string]SourceLimits
	limiters map[string]*rate.Limiter
	logger   *log.Logger

	// sleep and jitter are injectable for deterministic tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64

	attemptMu  sync.Mutex
	attempts   []domain.FetchAttempt // bounded ring, retry bookkeeping only
	attemptCap int
}

// SchedulerOptions contains configuration for creating a Scheduler.
type SchedulerOptions struct {
	Adapters map[string]Adapter      // adapter per source name
	Limits   map[string]SourceLimits // limits per source name; defaults applied
	Logger   *log.Logger
}

// NewScheduler creates a new fetch scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Scheduler{
		adapters:   opts.Adapters,
		limits:     make(map[string]SourceLimits, len(opts.Adapters)),
		limiters:   make(map[string]*rate.Limiter, len(opts.Adapters)),
		logger:     logger,
		sleep:      sleepCtx,
		jitter:     rand.Float64,
		attemptCap: DefaultAttemptWindow,
	}

	for source := range opts.Adapters {
		limits := opts.Limits[source].withDefaults()
		s.limits[source] = limits
		// Burst equals the pool size so a fresh cycle can start its workers
		// without an artificial one-token bottleneck.
		s.limiters[source] = rate.NewLimiter(
			rate.Limit(float64(limits.RateLimitPerMinute)/60.0),
			limits.MaxConcurrency,
		)
	}

	return s
}

// Run fetches all targets and returns a finite result stream. One pass per
// invocation; callers re-invoke for the next cycle. Each source gets its own
// bounded worker pool so a slow or throttled source never starves others.
// The stream closes once every target has produced an observation set or a
// terminal failure, or the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, targets []domain.Target, fetchID string) <-chan Result {
	out := make(chan Result)

	bySource := make(map[string][]domain.Target)
	for _, t := range targets {
		bySource[t.Source] = append(bySource[t.Source], t)
	}

	var wg sync.WaitGroup
	for source, sourceTargets := range bySource {
		adapter, ok := s.adapters[source]
		if !ok {
			s.logger.Printf("No adapter registered for source %q, failing %d targets", source, len(sourceTargets))
			for _, t := range sourceTargets {
				t := t
				wg.Add(1)
				go func() {
					defer wg.Done()
					select {
					case out <- Result{Failure: &domain.FetchFailure{
						Source:  t.Source,
						Target:  t.Ref,
						Kind:    domain.ErrKindProtocolError,
						Message: "no adapter registered",
					}}:
					case <-ctx.Done():
					}
				}()
			}
			continue
		}

		limits := s.limits[source]
		work := make(chan domain.Target)

		for i := 0; i < limits.MaxConcurrency; i++ {
			wg.Add(1)
			go func(source string) {
				defer wg.Done()
				for t := range work {
					s.fetchTarget(ctx, adapter, limits, t, fetchID, out)
				}
			}(source)
		}

		wg.Add(1)
		go func(sourceTargets []domain.Target, work chan domain.Target) {
			defer wg.Done()
			defer close(work)
			for _, t := range sourceTargets {
				select {
				case work <- t:
				case <-ctx.Done():
					return
				}
			}
		}(sourceTargets, work)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// fetchTarget runs the attempt loop for one target and emits its results.
func (s *Scheduler) fetchTarget(ctx context.Context, adapter Adapter, limits SourceLimits, target domain.Target, fetchID string, out chan<- Result) {
	limiter := s.limiters[target.Source]

	var lastKind domain.ErrorKind
	var lastErr error
	attemptsMade := 0

	maxAttempts := limits.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// A fetch that would exceed the source's rate is delayed, not dropped.
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		attemptCtx, cancel := context.WithTimeout(ctx, limits.AttemptTimeout)
		attemptStart := time.Now()
		observations, err := adapter.Fetch(attemptCtx, target)
		cancel()
		attemptsMade = attempt
		observability.ObserveFetchLatency(target.Source, time.Since(attemptStart).Seconds())

		if err == nil {
			s.recordAttempt(domain.FetchAttempt{
				Source: target.Source, Target: target.Ref,
				Attempt: attempt, OK: true, Timestamp: time.Now().UnixMilli(),
			})
			observability.RecordObservationsFetched(len(observations))
			for _, o := range observations {
				o.FetchID = fetchID
				select {
				case out <- Result{Observation: o}:
				case <-ctx.Done():
					return
				}
			}
			return
		}

		lastKind = KindOf(err)
		lastErr = err
		s.recordAttempt(domain.FetchAttempt{
			Source: target.Source, Target: target.Ref,
			Attempt: attempt, Kind: lastKind, Timestamp: time.Now().UnixMilli(),
		})

		if !lastKind.Retryable() {
			break
		}
		if attempt == maxAttempts {
			break
		}

		delay := s.backoff(limits.BackoffBase, attempt)
		observability.RecordFetchRetry()
		s.logger.Printf("Transient %s fetching %s/%s (attempt %d/%d), retrying in %v",
			lastKind, target.Source, target.Ref, attempt, maxAttempts, delay)
		if err := s.sleep(ctx, delay); err != nil {
			return
		}
	}

	observability.RecordFetchFailure(target.Source, string(lastKind))
	select {
	case out <- Result{Failure: &domain.FetchFailure{
		Source:   target.Source,
		Target:   target.Ref,
		Kind:     lastKind,
		Attempts: attemptsMade,
		Message:  lastErr.Error(),
	}}:
	case <-ctx.Done():
	}
}

// backoff computes an exponential delay with full jitter in
// [0.5*delay, 1.5*delay], capped at DefaultMaxBackoff.
func (s *Scheduler) backoff(base time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt-1)
	if delay > DefaultMaxBackoff {
		delay = DefaultMaxBackoff
	}
	jittered := time.Duration(float64(delay) * (0.5 + s.jitter()))
	if jittered > DefaultMaxBackoff {
		jittered = DefaultMaxBackoff
	}
	return jittered
}

// recordAttempt appends to the bounded attempt window.
func (s *Scheduler) recordAttempt(a domain.FetchAttempt) {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	s.attempts = append(s.attempts, a)
	if len(s.attempts) > s.attemptCap {
		s.attempts = s.attempts[len(s.attempts)-s.attemptCap:]
	}
}

// Attempts returns a copy of the retained attempt window, for audit logs.
func (s *Scheduler) Attempts() []domain.FetchAttempt {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	cp := make([]domain.FetchAttempt, len(s.attempts))
	copy(cp, s.attempts)
	return cp
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
