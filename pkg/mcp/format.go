package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/medcache/pkg/classifier"
	"github.com/pario-ai/medcache/pkg/models"
	"github.com/pario-ai/medcache/pkg/sink/sqlite"
)

func formatSnapshots(snaps []models.Snapshot) string {
	if len(snaps) == 0 {
		return "No snapshots recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %12s %8s %8s %10s %10s %-18s %10s\n",
		"Time", "Entries", "Hit%", "Hits", "Evictions", "Expired", "Strategy", "Saved")
	b.WriteString(strings.Repeat("-", 104) + "\n")
	for _, s := range snaps {
		fmt.Fprintf(&b, "%-20s %5d/%-6d %7.1f%% %8d %10d %10d %-18s %10.2f\n",
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.Cache.Entries, s.Cache.Capacity,
			s.Cache.HitRate*100, s.Cache.Hits,
			s.Cache.Evictions, s.Cache.Expirations,
			s.Prioritizer.Strategy, s.Prioritizer.EstimatedCostSaved)
	}
	return b.String()
}

func formatRemovals(events []models.RemovalEvent, counts []sqlite.ReasonCount) string {
	var b strings.Builder
	if len(counts) > 0 {
		b.WriteString("Totals:")
		for _, c := range counts {
			fmt.Fprintf(&b, " %s=%d", c.Reason, c.Count)
		}
		b.WriteString("\n\n")
	}
	if len(events) == 0 {
		b.WriteString("No removal events recorded.")
		return b.String()
	}
	fmt.Fprintf(&b, "%-20s %-12s %-18s %8s %-10s %s\n",
		"Time", "Reason", "Category", "Priority", "Strategy", "Key")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, e := range events {
		key := e.Key
		if r := []rune(key); len(r) > 40 {
			key = string(r[:37]) + "..."
		}
		fmt.Fprintf(&b, "%-20s %-12s %-18s %8d %-10s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Reason, e.Category, e.Priority, e.Strategy, key)
	}
	return b.String()
}

func formatClassification(c *classifier.Classifier, q models.Query) string {
	canonical := models.Canonical(q)
	md := c.GenerateMetadata(canonical, time.Now())
	ttl := c.ComputeTTL(canonical)
	ttlText := ttl.String()
	if ttl == 0 {
		ttlText = "0 (never cached)"
	}
	return fmt.Sprintf("Classification\n"+
		"  Category: %s\n"+
		"  TTL:      %s\n"+
		"  Priority: %d\n"+
		"  Tags:     %s\n",
		md.Category, ttlText, md.Priority, strings.Join(md.Tags, ", "))
}
