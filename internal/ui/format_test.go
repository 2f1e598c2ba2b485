package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/candlewatch/engine/internal/metrics"
	"github.com/candlewatch/engine/internal/pool"
	"github.com/candlewatch/engine/internal/store"
)

func TestFirstSymbols(t *testing.T) {
	tests := map[string]struct {
		symbols []string
		want    string
	}{
		"empty":  {nil, "-"},
		"single": {[]string{"BTCUSDT"}, "BTCUSDT"},
		"many":   {[]string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, "BTCUSDT +2"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := firstSymbols(tt.symbols); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormatAlertUnescapesText(t *testing.T) {
	a := store.Alert{
		Kind:   store.AlertCrossing,
		Symbol: "A&BUSDT",
		Text:   "🟢 A&amp;BUSDT crossed above 2% on 5m timeframe (3.00%)",
		SentAt: time.Date(2024, 1, 1, 12, 30, 5, 0, time.UTC),
	}

	text, secondary := formatAlert(a)
	if !strings.HasPrefix(text, "🟢 A&BUSDT crossed above") {
		t.Errorf("Unexpected text %q", text)
	}
	if secondary != "12:30:05 | A&BUSDT" {
		t.Errorf("Unexpected secondary text %q", secondary)
	}
}

func TestFormatStats(t *testing.T) {
	snapshot := metrics.Snapshot{
		MessagesTotal: 42,
		AlertsByDirection: map[store.Direction]int64{
			store.DirectionAbove: 3,
			store.DirectionBelow: 1,
		},
	}
	status := pool.Status{Initialized: true, LiveShards: 2, Shards: make([]pool.ShardStatus, 3), DedupEntries: 4}

	text := formatStats(snapshot, status)
	for _, want := range []string{"Messages: 42", "Crossed Above: 3", "Crossed Below: 1", "(2/3 shards)", "Dedup Entries: 4"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in stats:\n%s", want, text)
		}
	}
	if !strings.Contains(formatStats(metrics.Snapshot{}, pool.Status{}), "not initialized") {
		t.Error("Expected an uninitialized pool to be reported")
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(90 * time.Minute); got != "1h 30m" {
		t.Errorf("Expected 1h 30m, got %s", got)
	}
	if got := formatTimeAgo(time.Time{}); got != "never" {
		t.Errorf("Expected never, got %s", got)
	}
}
