package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders price events as CSV string.
func RenderCSV(events []EventRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("event_id,source,product_key,classification,old_price,new_price,change_pct,detected_at\n")

	// Rows
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%.6f,%.6f,%.6f,%d\n",
			e.EventID,
			e.Source,
			e.ProductKey,
			e.Classification,
			e.OldPrice,
			e.NewPrice,
			e.ChangePct,
			e.DetectedAt,
		))
	}

	return sb.String()
}
