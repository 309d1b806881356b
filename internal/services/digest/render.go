package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
)

func Subject(r models.Report) string {
	n := len(r.Rows)
	if r.Admin {
		return fmt.Sprintf("Tracking digest (all customers): %d updates, %d issues", n, r.IssueCount())
	}
	if issues := r.IssueCount(); issues > 0 {
		return fmt.Sprintf("Your shipment updates: %d updates, %d need attention", n, issues)
	}
	return fmt.Sprintf("Your shipment updates: %d updates", n)
}

func Body(r models.Report) string {
	var b strings.Builder
	if r.Name != "" {
		fmt.Fprintf(&b, "Hello %s,\n\n", r.Name)
	}
	fmt.Fprintf(&b, "Window: %s\n\n", r.WindowID)
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "%s  %s  %s", row.Timestamp.UTC().Format(time.RFC3339), row.TrackingNumber, row.Status)
		if row.IssueType != "" {
			fmt.Fprintf(&b, " [%s]", row.IssueType)
		}
		if row.StatusDescription != "" {
			fmt.Fprintf(&b, " - %s", row.StatusDescription)
		}
		if row.RecipientName != "" || row.Destination != "" {
			fmt.Fprintf(&b, " (to %s", row.RecipientName)
			if row.Destination != "" {
				fmt.Fprintf(&b, ", %s", row.Destination)
			}
			b.WriteString(")")
		}
		if r.Admin && row.OwnerEmail != "" {
			fmt.Fprintf(&b, " owner=%s", row.OwnerEmail)
		}
		fmt.Fprintf(&b, " shipment=%s\n", row.ShipmentID)
	}
	return b.String()
}
