// Package detector decides which candle updates produce an alert.
package detector

import (
	"log/slog"

	"github.com/candlewatch/engine/internal/store"
	"github.com/shopspring/decimal"
)

// DefaultMaxEntries bounds the dedup table between scheduled resets.
const DefaultMaxEntries = 100000

// Engine detects threshold crossings and remembers which candles already
// alerted. It is not safe for concurrent use: the connection pool drives it
// from its event loop.
type Engine struct {
	thresholds ThresholdTable
	maxEntries int

	// records maps a candle to the percent value it alerted at
	records map[store.DedupKey]decimal.Decimal
}

// NewEngine creates a new Engine.
func NewEngine(thresholds ThresholdTable, maxEntries int) *Engine {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Engine{
		thresholds: thresholds,
		maxEntries: maxEntries,
		records:    make(map[store.DedupKey]decimal.Decimal),
	}
}

// Evaluate analyzes a candle update and returns the crossing it produces, if any.
// A candle alerts at most once, however many updates it receives.
func (e *Engine) Evaluate(candle store.Candle) (store.Crossing, bool) {
	key := candle.Key()
	if e.Alerted(key) {
		return store.Crossing{}, false
	}

	pct := candle.PercentChange()
	threshold := e.thresholds.For(candle.Timeframe)

	var direction store.Direction
	switch {
	case pct.GreaterThan(threshold):
		direction = store.DirectionAbove
	case pct.LessThan(threshold.Neg()):
		direction = store.DirectionBelow
	default:
		return store.Crossing{}, false
	}

	if !e.CheckAndRecord(key, pct) {
		return store.Crossing{}, false
	}

	return store.Crossing{
		Candle:    candle,
		Percent:   pct,
		Threshold: threshold,
		Direction: direction,
	}, true
}

// CheckAndRecord records key with the percent value it alerted at.
// It returns false, leaving the entry untouched, when key was already recorded.
func (e *Engine) CheckAndRecord(key store.DedupKey, pct decimal.Decimal) bool {
	if _, ok := e.records[key]; ok {
		return false
	}

	if len(e.records) >= e.maxEntries {
		slog.Warn("dedup_table_full", "entries", len(e.records), "action", "reset")
		e.Reset()
	}

	e.records[key] = pct
	return true
}

// Alerted reports whether key already produced an alert.
func (e *Engine) Alerted(key store.DedupKey) bool {
	_, ok := e.records[key]
	return ok
}

// Recorded returns the percent value key alerted at.
func (e *Engine) Recorded(key store.DedupKey) (decimal.Decimal, bool) {
	v, ok := e.records[key]
	return v, ok
}

// Reset drops every record and returns how many were dropped.
func (e *Engine) Reset() int {
	n := len(e.records)
	e.records = make(map[store.DedupKey]decimal.Decimal)
	return n
}

// Len returns the number of recorded candles.
func (e *Engine) Len() int {
	return len(e.records)
}

// Thresholds returns the engine's threshold table.
func (e *Engine) Thresholds() ThresholdTable {
	return e.thresholds
}
