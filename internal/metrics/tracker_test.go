package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/candlewatch/engine/internal/store"
	"github.com/shopspring/decimal"
)

func testCandle(symbol, tf string, open, closePrice int64) store.Candle {
	return store.Candle{
		Symbol:    symbol,
		Timeframe: tf,
		OpenTime:  time.UnixMilli(1700000000000),
		Open:      decimal.NewFromInt(open),
		Close:     decimal.NewFromInt(closePrice),
	}
}

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker()

	tr.IncrementMessages()
	tr.IncrementMessages()
	tr.IncrementParseErrors()
	tr.IncrementShardConnects()
	tr.IncrementShardDisconnects()
	tr.IncrementDiscoveryFailures()
	tr.IncrementDedupResets()
	tr.RecordCandle(testCandle("BTCUSDT", "5m", 100, 103))
	tr.RecordCrossing(store.Crossing{
		Candle:    testCandle("BTCUSDT", "5m", 100, 103),
		Percent:   decimal.NewFromInt(3),
		Threshold: decimal.NewFromInt(2),
		Direction: store.DirectionAbove,
	})
	tr.RecordStatusAlert("Shard 1 connected")

	s := tr.Snapshot(10)
	if s.MessagesTotal != 2 || s.ParseErrors != 1 || s.CandlesTotal != 1 {
		t.Errorf("Unexpected counters %+v", s)
	}
	if s.ShardConnects != 1 || s.ShardDisconnects != 1 || s.DiscoveryFailures != 1 || s.DedupResets != 1 {
		t.Errorf("Unexpected lifecycle counters %+v", s)
	}
	if s.AlertsByDirection[store.DirectionAbove] != 1 || s.StatusAlerts != 1 {
		t.Errorf("Unexpected alert counters %+v", s)
	}
	if len(s.RecentAlerts) != 2 || s.RecentAlerts[0].Kind != store.AlertStatus {
		t.Errorf("Expected newest alert first, got %+v", s.RecentAlerts)
	}
	if s.MessageRate <= 0 {
		t.Errorf("Expected a positive message rate, got %f", s.MessageRate)
	}
}

func TestTrackerTopMovers(t *testing.T) {
	tr := NewTracker()

	tr.RecordCandle(testCandle("AUSDT", "5m", 100, 101))
	tr.RecordCandle(testCandle("BUSDT", "5m", 100, 92))
	tr.RecordCandle(testCandle("CUSDT", "1h", 100, 104))
	// A later update replaces the earlier move of the same candle stream
	tr.RecordCandle(testCandle("AUSDT", "5m", 100, 110))

	movers := tr.Snapshot(2).TopMovers
	if len(movers) != 2 {
		t.Fatalf("Expected 2 movers, got %d", len(movers))
	}
	if movers[0].Symbol != "AUSDT" || movers[0].PercentChange != 10 {
		t.Errorf("Expected AUSDT +10 first, got %+v", movers[0])
	}
	if movers[1].Symbol != "BUSDT" || movers[1].PercentChange != -8 {
		t.Errorf("Expected BUSDT -8 second, got %+v", movers[1])
	}
}

func TestTrackerRecentAlertsBounded(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < MaxRecentAlerts+10; i++ {
		tr.RecordStatusAlert(fmt.Sprintf("Shard %d connected", i))
	}

	alerts := tr.Snapshot(0).RecentAlerts
	if len(alerts) != MaxRecentAlerts {
		t.Errorf("Expected %d alerts, got %d", MaxRecentAlerts, len(alerts))
	}
	if alerts[0].Text != fmt.Sprintf("Shard %d connected", MaxRecentAlerts+9) {
		t.Errorf("Expected newest alert first, got %s", alerts[0].Text)
	}
}
