package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Price Pipeline Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Sources: %d\n\n", r.SourceCount))

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Observations | %d |\n", r.DataSummary.TotalObservations))
	sb.WriteString(fmt.Sprintf("| Tracked Products | %d |\n", r.DataSummary.TrackedProducts))
	sb.WriteString(fmt.Sprintf("| Total Events | %d |\n", r.DataSummary.TotalEvents))
	sb.WriteString(fmt.Sprintf("| Out of Stock | %d |\n", r.DataSummary.UnavailableCount))
	sb.WriteString(fmt.Sprintf("| Date Range Start (ms) | %d |\n", r.DataSummary.DateRangeStart))
	sb.WriteString(fmt.Sprintf("| Date Range End (ms) | %d |\n", r.DataSummary.DateRangeEnd))
	sb.WriteString("\n")

	// Event Breakdown
	sb.WriteString("## Event Breakdown\n\n")
	sb.WriteString("| Classification | Count |\n")
	sb.WriteString("|----------------|-------|\n")
	sb.WriteString(fmt.Sprintf("| price_drop | %d |\n", r.EventBreakdown.PriceDrops))
	sb.WriteString(fmt.Sprintf("| price_rise | %d |\n", r.EventBreakdown.PriceRises))
	sb.WriteString(fmt.Sprintf("| stock_out | %d |\n", r.EventBreakdown.StockOuts))
	sb.WriteString(fmt.Sprintf("| back_in_stock | %d |\n", r.EventBreakdown.BackInStock))
	sb.WriteString("\n")

	// Source Activity
	sb.WriteString("## Source Activity\n\n")
	if len(r.SourceActivity) > 0 {
		sb.WriteString("| Source | Products | Observations | Events |\n")
		sb.WriteString("|--------|----------|--------------|--------|\n")
		for _, row := range r.SourceActivity {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d |\n",
				row.Source, row.Products, row.Observations, row.Events))
		}
	} else {
		sb.WriteString("No source activity recorded.\n")
	}
	sb.WriteString("\n")

	// Top Movers
	sb.WriteString("## Top Drops\n\n")
	writeMoverTable(&sb, r.TopDrops)
	sb.WriteString("## Top Rises\n\n")
	writeMoverTable(&sb, r.TopRises)

	// Recent Events
	sb.WriteString("## Recent Events\n\n")
	if len(r.RecentEvents) > 0 {
		sb.WriteString("| Detected (ms) | Source | Product | Classification | Old | New | Change% |\n")
		sb.WriteString("|---------------|--------|---------|----------------|-----|-----|--------|\n")
		for _, e := range r.RecentEvents {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %.2f | %.2f | %.2f |\n",
				e.DetectedAt, e.Source, e.ProductKey, e.Classification,
				e.OldPrice, e.NewPrice, e.ChangePct*100))
		}
	} else {
		sb.WriteString("No events recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func writeMoverTable(sb *strings.Builder, movers []MoverRow) {
	if len(movers) == 0 {
		sb.WriteString("No movers recorded.\n\n")
		return
	}
	sb.WriteString("| Source | Product | Old | New | Change% |\n")
	sb.WriteString("|--------|---------|-----|-----|--------|\n")
	for _, m := range movers {
		sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %.2f | %.2f |\n",
			m.Source, m.ProductKey, m.OldPrice, m.NewPrice, m.ChangePct*100))
	}
	sb.WriteString("\n")
}
