// Package metrics provides real-time metrics tracking for the system.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/candlewatch/engine/internal/store"
)

const (
	// MaxRecentAlerts is how many alerts the snapshot keeps
	MaxRecentAlerts = 50
	// moverTTL drops movers whose candle stopped updating
	moverTTL = 2 * time.Hour
)

// Mover is the latest intra-candle move of one symbol and timeframe.
type Mover struct {
	Symbol        string
	Timeframe     string
	PercentChange float64
	Close         float64
	UpdatedAt     time.Time
}

// Snapshot is a point-in-time view of metrics.
type Snapshot struct {
	MessagesTotal     int64
	CandlesTotal      int64
	ParseErrors       int64
	AlertsByDirection map[store.Direction]int64
	StatusAlerts      int64
	ShardConnects     int64
	ShardDisconnects  int64
	DiscoveryFailures int64
	DedupResets       int64
	MessageRate       float64 // messages per second over the last minute
	RecentAlerts      []store.Alert
	TopMovers         []Mover
	Uptime            time.Duration
	LastMessage       time.Time
}

// Tracker provides thread-safe metrics tracking.
type Tracker struct {
	mu                sync.RWMutex
	messagesTotal     int64
	candlesTotal      int64
	parseErrors       int64
	alertsByDirection map[store.Direction]int64
	statusAlerts      int64
	shardConnects     int64
	shardDisconnects  int64
	discoveryFailures int64
	dedupResets       int64
	recentAlerts      []store.Alert
	movers            map[string]*Mover
	startTime         time.Time
	lastMessage       time.Time
	messageBuckets    map[int64]int64 // unix second -> count, for rate calculation
}

// NewTracker creates a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		alertsByDirection: make(map[store.Direction]int64),
		recentAlerts:      make([]store.Alert, 0, MaxRecentAlerts),
		movers:            make(map[string]*Mover),
		startTime:         time.Now(),
		messageBuckets:    make(map[int64]int64),
	}
}

// IncrementMessages counts one inbound frame.
func (m *Tracker) IncrementMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messagesTotal++
	m.lastMessage = time.Now()
	m.messageBuckets[m.lastMessage.Unix()]++
}

// IncrementParseErrors counts one malformed frame.
func (m *Tracker) IncrementParseErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseErrors++
}

// RecordCandle counts a parsed candle and tracks its move.
func (m *Tracker) RecordCandle(c store.Candle) {
	pct := c.PercentChangeFloat()
	closePrice := c.CloseFloat()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.candlesTotal++

	key := c.Symbol + "@" + c.Timeframe
	mover, ok := m.movers[key]
	if !ok {
		mover = &Mover{Symbol: c.Symbol, Timeframe: c.Timeframe}
		m.movers[key] = mover
	}
	mover.PercentChange = pct
	mover.Close = closePrice
	mover.UpdatedAt = time.Now()
}

// RecordCrossing counts a crossing alert.
func (m *Tracker) RecordCrossing(c store.Crossing) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alertsByDirection[c.Direction]++
	m.pushAlert(store.Alert{
		Kind:   store.AlertCrossing,
		Symbol: c.Candle.Symbol,
		Text:   c.Message(),
		SentAt: time.Now(),
	})
}

// RecordStatusAlert counts an informational alert.
func (m *Tracker) RecordStatusAlert(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statusAlerts++
	m.pushAlert(store.Alert{
		Kind:   store.AlertStatus,
		Text:   text,
		SentAt: time.Now(),
	})
}

// pushAlert keeps the most recent alerts first.
// Must be called with lock held.
func (m *Tracker) pushAlert(a store.Alert) {
	m.recentAlerts = append([]store.Alert{a}, m.recentAlerts...)
	if len(m.recentAlerts) > MaxRecentAlerts {
		m.recentAlerts = m.recentAlerts[:MaxRecentAlerts]
	}
}

// IncrementShardConnects counts a shard socket opening.
func (m *Tracker) IncrementShardConnects() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shardConnects++
}

// IncrementShardDisconnects counts a shard socket closing.
func (m *Tracker) IncrementShardDisconnects() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shardDisconnects++
}

// IncrementDiscoveryFailures counts a failed catalog fetch.
func (m *Tracker) IncrementDiscoveryFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoveryFailures++
}

// IncrementDedupResets counts a dedup table clear.
func (m *Tracker) IncrementDedupResets() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dedupResets++
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *Tracker) Snapshot(topN int) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()

	// Rate over the last 60 seconds
	var lastMinute int64
	cutoff := now.Add(-60 * time.Second).Unix()
	for sec, n := range m.messageBuckets {
		if sec > cutoff {
			lastMinute += n
		}
	}

	directions := make(map[store.Direction]int64, len(m.alertsByDirection))
	for k, v := range m.alertsByDirection {
		directions[k] = v
	}

	alerts := make([]store.Alert, len(m.recentAlerts))
	copy(alerts, m.recentAlerts)

	return Snapshot{
		MessagesTotal:     m.messagesTotal,
		CandlesTotal:      m.candlesTotal,
		ParseErrors:       m.parseErrors,
		AlertsByDirection: directions,
		StatusAlerts:      m.statusAlerts,
		ShardConnects:     m.shardConnects,
		ShardDisconnects:  m.shardDisconnects,
		DiscoveryFailures: m.discoveryFailures,
		DedupResets:       m.dedupResets,
		MessageRate:       float64(lastMinute) / 60,
		RecentAlerts:      alerts,
		TopMovers:         m.topMovers(topN),
		Uptime:            now.Sub(m.startTime),
		LastMessage:       m.lastMessage,
	}
}

// topMovers returns the largest absolute moves first.
// Must be called with lock held.
func (m *Tracker) topMovers(n int) []Mover {
	movers := make([]Mover, 0, len(m.movers))
	for _, mover := range m.movers {
		movers = append(movers, *mover)
	}

	sort.Slice(movers, func(i, j int) bool {
		a, b := abs(movers[i].PercentChange), abs(movers[j].PercentChange)
		if a != b {
			return a > b
		}
		if movers[i].Symbol != movers[j].Symbol {
			return movers[i].Symbol < movers[j].Symbol
		}
		return movers[i].Timeframe < movers[j].Timeframe
	})

	if n > 0 && len(movers) > n {
		movers = movers[:n]
	}
	return movers
}

// Cleanup removes stale data from the tracker.
func (m *Tracker) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	for key, mover := range m.movers {
		if now.Sub(mover.UpdatedAt) > moverTTL {
			delete(m.movers, key)
		}
	}

	cutoff := now.Add(-60 * time.Second).Unix()
	for sec := range m.messageBuckets {
		if sec <= cutoff {
			delete(m.messageBuckets, sec)
		}
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
