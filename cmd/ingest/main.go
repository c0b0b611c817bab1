// Command ingest runs the pipeline continuously: fetch cycles on a timer
// plus WebSocket push feeds, with Prometheus metrics and graceful shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricewatch/internal/config"
	"pricewatch/internal/domain"
	"pricewatch/internal/fetch"
	"pricewatch/internal/ingest"
	"pricewatch/internal/normalize"
	"pricewatch/internal/observability"
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
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	verbose := flag.Bool("verbose", false, "Verbose cycle logging")

	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags)

	if *configPath == "" {
		logger.Fatal("--config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = runLive(ctx, logger, cfg, *postgresDSN, *clickhouseDSN, *useMemory, *verbose)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// runLive wires the full live pipeline and blocks until ctx is cancelled.
func runLive(ctx context.Context, logger *log.Logger, cfg *config.Config, postgresDSN, clickhouseDSN string, useMemory, verbose bool) error {
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

	adapters := make(map[string]fetch.Adapter)
	limits := make(map[string]fetch.SourceLimits)
	var targets []domain.Target
	var feeds []ingest.FeedSource

	for name, src := range cfg.Sources {
		if src.FeedURL != "" {
			feeds = append(feeds, fetch.NewWSFeedSource(name, src.FeedURL, nil, logger))
		}
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
			return fmt.Errorf("source %s: %w", name, err)
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

	if len(targets) == 0 && len(feeds) == 0 {
		return fmt.Errorf("config has no fetch targets or feeds")
	}

	var orch *orchestrator.Orchestrator
	if len(targets) > 0 {
		scheduler := fetch.NewScheduler(fetch.SchedulerOptions{
			Adapters: adapters,
			Limits:   limits,
			Logger:   logger,
		})
		orch = orchestrator.New(orchestrator.Options{
			Scheduler:  scheduler,
			Normalizer: normalizer,
			Engine:     engine,
			Lanes:      cfg.Pipeline.Lanes,
			Verbose:    verbose,
			Logger:     logger,
		})
	}

	runner := ingest.NewRunner(ingest.RunnerOptions{
		Orchestrator:  orch,
		Targets:       targets,
		Feeds:         feeds,
		Normalizer:    normalizer,
		Engine:        engine,
		CycleInterval: cfg.Pipeline.CycleInterval(),
		Logger:        logger,
	})

	logger.Println("Starting live ingestion...")
	return runner.Run(ctx)
}
