// Command replay rebuilds the derived layers from the raw observation log,
// or verifies that the live derived layers match a rebuild.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"pricewatch/internal/pricechange"
	"pricewatch/internal/replay"
	"pricewatch/internal/storage"
	chstore "pricewatch/internal/storage/clickhouse"
	"pricewatch/internal/storage/migrations"
	pgstore "pricewatch/internal/storage/postgres"
	"pricewatch/internal/verification"
)

func main() {
	mode := flag.String("mode", "verify", "Mode: verify (read-only diff) or rebuild (fold raw back into derived layers)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (raw and latest layers)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (event layer)")
	dropThreshold := flag.Float64("drop-threshold", pricechange.DefaultDropThreshold, "Drop threshold the live engine ran with")
	riseThreshold := flag.Float64("rise-threshold", pricechange.DefaultRiseThreshold, "Rise threshold the live engine ran with")

	flag.Parse()

	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags)

	if *postgresDSN == "" || *clickhouseDSN == "" {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer pool.Close()

	conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("Clickhouse migrations: %v", err)
	}
	defer conn.Close()

	rawStore := pgstore.NewRawObservationStore(pool)
	latestStore := pgstore.NewLatestStateStore(pool)
	eventStore := chstore.NewPriceEventStore(conn)

	switch *mode {
	case "verify":
		err = runVerify(ctx, logger, rawStore, latestStore, eventStore, *dropThreshold, *riseThreshold)
	case "rebuild":
		err = runRebuild(ctx, logger, rawStore, latestStore, eventStore, *dropThreshold, *riseThreshold)
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	if err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

// runVerify replays the raw layer into fresh in-memory stores and diffs
// them against the live derived layers. Exits non-zero on divergence.
func runVerify(ctx context.Context, logger *log.Logger, raw storage.RawObservationStore, latest storage.LatestStateStore, events storage.PriceEventStore, dropThreshold, riseThreshold float64) error {
	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		RawStore:      raw,
		LatestStore:   latest,
		EventStore:    events,
		DropThreshold: dropThreshold,
		RiseThreshold: riseThreshold,
	})

	report, err := verifier.Verify(ctx)
	if err != nil {
		return err
	}

	logger.Printf("States: %d total, %d matched, %d divergent",
		report.TotalStates, report.MatchedStates, report.DivergentStates)
	logger.Printf("Events: %d total, %d matched, %d divergent",
		report.TotalEvents, report.MatchedEvents, report.DivergentEvents)

	for _, s := range report.States {
		for _, d := range s.Divergences {
			logger.Printf("  state %s/%s %s: live=%v replayed=%v",
				s.Source, s.ProductKey, d.Field, d.Expected, d.Actual)
		}
	}
	for _, e := range report.Events {
		for _, d := range e.Divergences {
			logger.Printf("  event %s %s: live=%v replayed=%v",
				e.EventID, d.Field, d.Expected, d.Actual)
		}
	}

	if !report.Match() {
		return fmt.Errorf("derived layers diverge from replay")
	}

	logger.Println("Verification passed: derived layers match replay")
	return nil
}

// runRebuild folds the raw layer back into the live derived stores. Both
// folds are idempotent, so this repairs gaps without duplicating anything.
func runRebuild(ctx context.Context, logger *log.Logger, raw storage.RawObservationStore, latest storage.LatestStateStore, events storage.PriceEventStore, dropThreshold, riseThreshold float64) error {
	engine := pricechange.NewEngine(pricechange.EngineOptions{
		EventStore:    events,
		DropThreshold: dropThreshold,
		RiseThreshold: riseThreshold,
		Logger:        logger,
	})

	runner := replay.NewRunner(replay.RunnerOptions{
		RawStore:    raw,
		LatestStore: latest,
		Engine:      engine,
		Logger:      logger,
	})

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	logger.Printf("Rebuild complete: %d observations replayed, %d states, %d events",
		result.ObservationsReplayed, result.StatesRebuilt, result.EventsEmitted)
	return nil
}
