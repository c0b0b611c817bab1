// Command pipeline runs fetch cycles from a YAML config. One cycle per
// invocation by default, which suits cron; use --cycles for more.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"pricewatch/internal/config"
	"pricewatch/internal/domain"
	"pricewatch/internal/fetch"
	"pricewatch/internal/normalize"
	"pricewatch/internal/orchestrator"
	"pricewatch/internal/pricechange"
	"pricewatch/internal/storage"
	chstore "pricewatch/internal/storage/clickhouse"
	"pricewatch/internal/storage/memory"
	"pricewatch/internal/storage/migrations"
	pgstore "pricewatch/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (raw and latest layers)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (event layer)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	cycles := flag.Int("cycles", 1, "Number of fetch cycles to run")
	verbose := flag.Bool("verbose", false, "Verbose cycle logging")

	flag.Parse()

	logger := log.New(os.Stdout, "[pipeline] ", log.LstdFlags)

	if *configPath == "" {
		logger.Fatal("--config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}

	ctx := context.Background()

	if err := run(ctx, logger, cfg, *postgresDSN, *clickhouseDSN, *useMemory, *cycles, *verbose); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, postgresDSN, clickhouseDSN string, useMemory bool, cycles int, verbose bool) error {
	if !useMemory && (postgresDSN == "" || clickhouseDSN == "") {
		return fmt.Errorf("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	var rawStore storage.RawObservationStore = memory.NewRawObservationStore()
	var latestStore storage.LatestStateStore = memory.NewLatestStateStore()
	var eventStore storage.PriceEventStore = memory.NewPriceEventStore()

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}

		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()

		rawStore = pgstore.NewRawObservationStore(pool)
		latestStore = pgstore.NewLatestStateStore(pool)
		eventStore = chstore.NewPriceEventStore(conn)
	}

	adapters, limits, targets, err := buildSources(cfg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("config has no fetch targets")
	}

	scheduler := fetch.NewScheduler(fetch.SchedulerOptions{
		Adapters: adapters,
		Limits:   limits,
		Logger:   logger,
	})

	normalizer := normalize.NewNormalizer(normalize.NormalizerOptions{
		Rates:           normalize.NewRateTable(cfg.Currency.Canonical, cfg.Currency.Rates),
		RawStore:        rawStore,
		LatestStore:     latestStore,
		DedupWindow:     cfg.Pipeline.DedupWindow(),
		DedupMaxEntries: cfg.Pipeline.DedupMaxEntries,
		Logger:          logger,
	})

	dispatcher := pricechange.NewDispatcher(pricechange.DispatcherOptions{
		Sink:            pricechange.NewLogSink(logger),
		QueueSize:       cfg.Alerts.QueueSize,
		DeliveryRetries: cfg.Alerts.DeliveryRetries,
		Logger:          logger,
	})
	defer dispatcher.Close()

	engine := pricechange.NewEngine(pricechange.EngineOptions{
		EventStore:    eventStore,
		Alerts:        dispatcher,
		DropThreshold: cfg.Detection.DropThreshold,
		RiseThreshold: cfg.Detection.RiseThreshold,
		Logger:        logger,
	})

	orch := orchestrator.New(orchestrator.Options{
		Scheduler:  scheduler,
		Normalizer: normalizer,
		Engine:     engine,
		Lanes:      cfg.Pipeline.Lanes,
		Verbose:    verbose,
		Logger:     logger,
	})

	for i := 0; i < cycles; i++ {
		summary, err := orch.RunCycle(ctx, targets)
		if err != nil {
			return fmt.Errorf("cycle %d: %w", i+1, err)
		}

		totals := summary.Totals()
		logger.Printf("Cycle %s: %d succeeded, %d failed, %d rejected, %d duplicates, %d events (%dms)",
			summary.FetchID, totals.Succeeded, totals.Failed, totals.Rejected,
			totals.Duplicates, totals.Events, summary.Duration)
		for _, e := range summary.Errors {
			logger.Printf("  error: %s", e)
		}

		if i+1 < cycles {
			time.Sleep(cfg.Pipeline.CycleInterval())
		}
	}

	return nil
}

// buildSources turns the config's source map into scheduler inputs.
// Feed-only sources have no base URL and are skipped here; they belong to
// the continuous ingest binary.
func buildSources(cfg *config.Config) (map[string]fetch.Adapter, map[string]fetch.SourceLimits, []domain.Target, error) {
	adapters := make(map[string]fetch.Adapter)
	limits := make(map[string]fetch.SourceLimits)
	var targets []domain.Target

	for name, src := range cfg.Sources {
		if src.BaseURL == "" {
			continue
		}

		adapter, err := fetch.NewHTTPAdapter(fetch.HTTPAdapterOptions{
			Source:     name,
			BaseURL:    src.BaseURL,
			UserAgents: src.UserAgents,
			Timeout:    src.Timeout(),
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("source %s: %w", name, err)
		}

		adapters[name] = adapter
		limits[name] = fetch.SourceLimits{
			MaxConcurrency:     src.MaxConcurrency,
			RateLimitPerMinute: src.RateLimitPerMinute,
			MaxRetries:         src.MaxRetries,
			BackoffBase:        src.BackoffBase(),
			AttemptTimeout:     src.Timeout(),
		}
		for _, ref := range src.Targets {
			targets = append(targets, domain.Target{Source: name, Ref: ref})
		}
	}

	return adapters, limits, targets, nil
}
