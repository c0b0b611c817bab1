// Command report renders a pipeline summary from the stored layers, as
// Markdown for reading or CSV for downstream analysis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"pricewatch/internal/reporting"
	chstore "pricewatch/internal/storage/clickhouse"
	pgstore "pricewatch/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (raw and latest layers)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (event layer)")
	format := flag.String("format", "markdown", "Output format: markdown or csv")
	output := flag.String("output", "", "Output file (default stdout)")

	flag.Parse()

	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)

	if *postgresDSN == "" || *clickhouseDSN == "" {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer pool.Close()

	conn, err := chstore.NewConn(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("Connect to clickhouse: %v", err)
	}
	defer conn.Close()

	generator := reporting.NewGenerator(
		pgstore.NewRawObservationStore(pool),
		pgstore.NewLatestStateStore(pool),
		chstore.NewPriceEventStore(conn),
	)

	var rendered string
	switch *format {
	case "markdown":
		report, err := generator.Generate(ctx)
		if err != nil {
			logger.Fatalf("Generate report: %v", err)
		}
		rendered = reporting.RenderMarkdown(report)
	case "csv":
		rows, err := generator.ExportEvents(ctx)
		if err != nil {
			logger.Fatalf("Export events: %v", err)
		}
		rendered = reporting.RenderCSV(rows)
	default:
		logger.Fatalf("Unknown format: %s", *format)
	}

	if *output == "" {
		fmt.Print(rendered)
		return
	}

	if err := os.WriteFile(*output, []byte(rendered), 0o644); err != nil {
		logger.Fatalf("Write %s: %v", *output, err)
	}
	logger.Printf("Report written to %s", *output)
}
