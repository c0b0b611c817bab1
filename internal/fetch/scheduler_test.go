package fetch_test

import (
	"context"
	"testing"
	"time"

	"pricewatch/internal/domain"
	"pricewatch/internal/fetch"
	"pricewatch/internal/fetch/stub"
)

func testScheduler(adapter fetch.Adapter, limits fetch.SourceLimits) *fetch.Scheduler {
	return fetch.NewScheduler(fetch.SchedulerOptions{
		Adapters: map[string]fetch.Adapter{"amazon": adapter},
		Limits:   map[string]fetch.SourceLimits{"amazon": limits},
	})
}

// fastLimits keeps retries near-instant so tests stay fast.
func fastLimits() fetch.SourceLimits {
	return fetch.SourceLimits{
		MaxConcurrency:     2,
		RateLimitPerMinute: 600000,
		MaxRetries:         3,
		BackoffBase:        time.Millisecond,
		AttemptTimeout:     time.Second,
	}
}

func collect(results <-chan fetch.Result) (observations []*domain.Observation, failures []*domain.FetchFailure) {
	for r := range results {
		if r.Observation != nil {
			observations = append(observations, r.Observation)
		}
		if r.Failure != nil {
			failures = append(failures, r.Failure)
		}
	}
	return observations, failures
}

func TestScheduler_EmitsObservations(t *testing.T) {
	adapter := stub.NewAdapter()
	adapter.Script("/p1", stub.Response{Observations: []*domain.Observation{
		{Source: "amazon", ProductKey: "k1", Price: 100, Currency: "USD", Available: true, ObservedAt: 1000},
		{Source: "amazon", ProductKey: "k2", Price: 50, Currency: "USD", Available: true, ObservedAt: 1000},
	}})

	s := testScheduler(adapter, fastLimits())
	results := s.Run(context.Background(), []domain.Target{{Source: "amazon", Ref: "/p1"}}, "fetch-1")

	observations, failures := collect(results)
	if len(failures) != 0 {
		t.Fatalf("Expected no failures, got %d: %+v", len(failures), failures[0])
	}
	if len(observations) != 2 {
		t.Fatalf("Expected 2 observations, got %d", len(observations))
	}
	for _, o := range observations {
		if o.FetchID != "fetch-1" {
			t.Errorf("Observation missing fetch ID: %+v", o)
		}
	}
}

func TestScheduler_RetriesTransientThenSucceeds(t *testing.T) {
	adapter := stub.NewAdapter()
	adapter.Script("/p1", stub.Response{
		Errs: []error{
			fetch.Errf(domain.ErrKindTimeout, "timeout"),
			fetch.Errf(domain.ErrKindBlocked, "throttled"),
		},
		Observations: []*domain.Observation{
			{Source: "amazon", ProductKey: "k1", Price: 100, Currency: "USD", Available: true, ObservedAt: 1000},
		},
	})

	s := testScheduler(adapter, fastLimits())
	observations, failures := collect(s.Run(context.Background(), []domain.Target{{Source: "amazon", Ref: "/p1"}}, "f"))

	if len(failures) != 0 {
		t.Fatalf("Expected no failures, got %+v", failures)
	}
	if len(observations) != 1 {
		t.Fatalf("Expected 1 observation after retries, got %d", len(observations))
	}
	if got := adapter.Calls("/p1"); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestScheduler_RetryExhaustion(t *testing.T) {
	// Transient errors on every attempt up to max_retries yield exactly one
	// FetchFailure with the transient kind and no observations.
	adapter := stub.NewAdapter()
	adapter.Script("/p1", stub.Response{
		Errs: []error{
			fetch.Errf(domain.ErrKindTimeout, "timeout"),
			fetch.Errf(domain.ErrKindTimeout, "timeout"),
			fetch.Errf(domain.ErrKindTimeout, "timeout"),
			fetch.Errf(domain.ErrKindTimeout, "timeout"),
		},
	})

	s := testScheduler(adapter, fastLimits())
	observations, failures := collect(s.Run(context.Background(), []domain.Target{{Source: "amazon", Ref: "/p1"}}, "f"))

	if len(observations) != 0 {
		t.Fatalf("Expected no observations, got %d", len(observations))
	}
	if len(failures) != 1 {
		t.Fatalf("Expected exactly 1 failure, got %d", len(failures))
	}
	f := failures[0]
	if f.Kind != domain.ErrKindTimeout {
		t.Errorf("Expected error kind timeout, got %s", f.Kind)
	}
	if f.Attempts != 4 {
		t.Errorf("Expected 4 attempts (1 + 3 retries), got %d", f.Attempts)
	}
	if got := adapter.Calls("/p1"); got != 4 {
		t.Errorf("Adapter called %d times, want 4", got)
	}
}

func TestScheduler_PermanentFailureNotRetried(t *testing.T) {
	adapter := stub.NewAdapter()
	adapter.Script("/gone", stub.Response{
		Errs: []error{fetch.Errf(domain.ErrKindNotFound, "listing removed")},
	})

	s := testScheduler(adapter, fastLimits())
	_, failures := collect(s.Run(context.Background(), []domain.Target{{Source: "amazon", Ref: "/gone"}}, "f"))

	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if failures[0].Kind != domain.ErrKindNotFound {
		t.Errorf("Expected not_found, got %s", failures[0].Kind)
	}
	if got := adapter.Calls("/gone"); got != 1 {
		t.Errorf("Permanent failure retried: %d attempts", got)
	}
}

func TestScheduler_OneBadTargetDoesNotAbortBatch(t *testing.T) {
	adapter := stub.NewAdapter()
	adapter.Script("/ok", stub.Response{Observations: []*domain.Observation{
		{Source: "amazon", ProductKey: "k1", Price: 10, Currency: "USD", Available: true, ObservedAt: 1000},
	}})
	adapter.Script("/bad", stub.Response{
		Errs: []error{fetch.Errf(domain.ErrKindProtocolError, "garbage payload")},
	})

	s := testScheduler(adapter, fastLimits())
	observations, failures := collect(s.Run(context.Background(), []domain.Target{
		{Source: "amazon", Ref: "/ok"},
		{Source: "amazon", Ref: "/bad"},
	}, "f"))

	if len(observations) != 1 {
		t.Errorf("Expected surviving observation, got %d", len(observations))
	}
	if len(failures) != 1 {
		t.Errorf("Expected 1 failure, got %d", len(failures))
	}
}

func TestScheduler_UnknownSourceFailsTargets(t *testing.T) {
	s := testScheduler(stub.NewAdapter(), fastLimits())
	_, failures := collect(s.Run(context.Background(), []domain.Target{{Source: "ebay", Ref: "/x"}}, "f"))

	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure for unregistered source, got %d", len(failures))
	}
	if failures[0].Kind != domain.ErrKindProtocolError {
		t.Errorf("Expected protocol_error, got %s", failures[0].Kind)
	}
}

func TestScheduler_Cancellation(t *testing.T) {
	adapter := stub.NewAdapter()
	adapter.Script("/slow", stub.Response{
		Errs: []error{
			fetch.Errf(domain.ErrKindTimeout, "timeout"),
			fetch.Errf(domain.ErrKindTimeout, "timeout"),
		},
	})

	limits := fastLimits()
	limits.BackoffBase = 10 * time.Second // force the retry to park in backoff

	ctx, cancel := context.WithCancel(context.Background())
	s := testScheduler(adapter, limits)
	results := s.Run(ctx, []domain.Target{{Source: "amazon", Ref: "/slow"}}, "f")

	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		collect(results)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Scheduler did not shut down after cancellation")
	}
}

func TestScheduler_RecordsAttempts(t *testing.T) {
	adapter := stub.NewAdapter()
	adapter.Script("/p1", stub.Response{
		Errs: []error{fetch.Errf(domain.ErrKindTimeout, "timeout")},
		Observations: []*domain.Observation{
			{Source: "amazon", ProductKey: "k1", Price: 10, Currency: "USD", Available: true, ObservedAt: 1000},
		},
	})

	s := testScheduler(adapter, fastLimits())
	collect(s.Run(context.Background(), []domain.Target{{Source: "amazon", Ref: "/p1"}}, "f"))

	attempts := s.Attempts()
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 recorded attempts, got %d", len(attempts))
	}
	if attempts[0].OK || attempts[0].Kind != domain.ErrKindTimeout {
		t.Errorf("First attempt should be a timeout failure: %+v", attempts[0])
	}
	if !attempts[1].OK {
		t.Errorf("Second attempt should have succeeded: %+v", attempts[1])
	}
}
