package reporting

import "time"

// Report summarizes the state of the price pipeline for operators.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	SourceCount int

	// Data Summary
	DataSummary DataSummary

	// Event Breakdown (counts per classification)
	EventBreakdown EventBreakdown

	// Source Activity (sorted by source)
	SourceActivity []SourceActivityRow

	// Top Movers (largest drops first, then largest rises)
	TopDrops []MoverRow
	TopRises []MoverRow

	// Recent Events (most recent first)
	RecentEvents []EventRow
}

// DataSummary describes the layered store contents.
type DataSummary struct {
	TotalObservations int
	TrackedProducts   int
	TotalEvents       int
	UnavailableCount  int   // products currently out of stock
	DateRangeStart    int64 // Unix ms, earliest observation
	DateRangeEnd      int64 // Unix ms, latest observation
}

// EventBreakdown counts events per classification.
type EventBreakdown struct {
	PriceDrops  int
	PriceRises  int
	StockOuts   int
	BackInStock int
}

// SourceActivityRow represents one row in the source activity table.
type SourceActivityRow struct {
	Source       string
	Products     int
	Observations int
	Events       int
}

// MoverRow represents one product in a top-movers table.
type MoverRow struct {
	Source     string
	ProductKey string
	OldPrice   float64
	NewPrice   float64
	ChangePct  float64
	DetectedAt int64
}

// EventRow represents one price event in the recent events table.
type EventRow struct {
	EventID        string
	Source         string
	ProductKey     string
	Classification string
	OldPrice       float64
	NewPrice       float64
	ChangePct      float64
	DetectedAt     int64
}
