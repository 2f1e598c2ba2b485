package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/candlewatch/engine/internal/metrics"
	"github.com/candlewatch/engine/internal/pool"
	"github.com/candlewatch/engine/internal/store"
)

// StatsDashboardView displays system health and throughput.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats ").SetBorder(true)

	return &StatsDashboardView{
		textView: textView,
	}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.Snapshot, status pool.Status) {
	v.textView.Clear()
	fmt.Fprint(v.textView, formatStats(snapshot, status))
}

func formatStats(snapshot metrics.Snapshot, status pool.Status) string {
	poolState, poolColor := "not initialized", "red"
	if status.Initialized {
		poolState, poolColor = "initialized", "green"
	}

	return fmt.Sprintf(`[yellow]System Status[-]
Uptime: %s
Pool: [%s]%s[-] (%d/%d shards)
Last Message: %s

[yellow]Stream Stats[-]
Messages: %d
Candles: %d
Parse Errors: %d
Rate: %.2f msg/sec

[yellow]Alerts[-]
Crossed Above: %d
Crossed Below: %d
Status: %d
Dedup Entries: %d (resets %d)

[yellow]Lifecycle[-]
Connects: %d
Disconnects: %d
Discovery Failures: %d
`,
		formatDuration(snapshot.Uptime),
		poolColor, poolState, status.LiveShards, len(status.Shards),
		formatTimeAgo(snapshot.LastMessage),
		snapshot.MessagesTotal,
		snapshot.CandlesTotal,
		snapshot.ParseErrors,
		snapshot.MessageRate,
		snapshot.AlertsByDirection[store.DirectionAbove],
		snapshot.AlertsByDirection[store.DirectionBelow],
		snapshot.StatusAlerts,
		status.DedupEntries, snapshot.DedupResets,
		snapshot.ShardConnects,
		snapshot.ShardDisconnects,
		snapshot.DiscoveryFailures,
	)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
