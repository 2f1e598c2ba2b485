// Package store provides the data models shared by the ingest, detection and alerting layers.
package store

import (
	"fmt"
	"html"
	"time"

	"github.com/shopspring/decimal"
)

// StatusTrading is the catalog status of an instrument that can be streamed.
const StatusTrading = "TRADING"

var hundred = decimal.NewFromInt(100)

// Instrument is one entry of the exchange catalog.
type Instrument struct {
	// Symbol is the exchange identifier, e.g. BTCUSDT
	Symbol string

	// QuoteAsset is the asset the instrument is priced in
	QuoteAsset string

	// Status is the trading status reported by the catalog
	Status string
}

// Candle is one kline update for a symbol and timeframe.
// A candle is re-emitted many times while its bar is open; OpenTime and Open
// stay constant and Close moves.
type Candle struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      decimal.Decimal
	Close     decimal.Decimal

	// Final is set on the last update of the bar
	Final bool
}

// PercentChange returns (close - open) / open * 100.
func (c Candle) PercentChange() decimal.Decimal {
	if c.Open.IsZero() {
		return decimal.Zero
	}
	return c.Close.Sub(c.Open).Mul(hundred).Div(c.Open)
}

// PercentChangeFloat returns PercentChange as a float64 for display.
func (c Candle) PercentChangeFloat() float64 {
	f, _ := c.PercentChange().Float64()
	return f
}

// CloseFloat returns the close price as a float64 for display.
func (c Candle) CloseFloat() float64 {
	f, _ := c.Close.Float64()
	return f
}

// Key returns the identity of the candle regardless of how many updates it receives.
func (c Candle) Key() DedupKey {
	return DedupKey{
		Symbol:    c.Symbol,
		Timeframe: c.Timeframe,
		OpenTime:  c.OpenTime.UnixMilli(),
		OpenPrice: c.Open.String(),
	}
}

// DedupKey identifies one physical candle.
type DedupKey struct {
	Symbol    string
	Timeframe string
	OpenTime  int64  // Unix milliseconds
	OpenPrice string // canonical decimal form
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s@%s/%d/%s", k.Symbol, k.Timeframe, k.OpenTime, k.OpenPrice)
}

// Direction of a threshold crossing.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Crossing is a positive verdict of the threshold engine.
type Crossing struct {
	Candle    Candle
	Percent   decimal.Decimal
	Threshold decimal.Decimal
	Direction Direction
}

// Message formats the crossing as an HTML alert text.
func (c Crossing) Message() string {
	symbol := html.EscapeString(c.Candle.Symbol)
	timeframe := html.EscapeString(c.Candle.Timeframe)
	pct := c.Percent.StringFixed(2)

	if c.Direction == DirectionBelow {
		return fmt.Sprintf("🔴 %s crossed below -%s%% on %s timeframe (%s%%)",
			symbol, c.Threshold.String(), timeframe, pct)
	}
	return fmt.Sprintf("🟢 %s crossed above %s%% on %s timeframe (%s%%)",
		symbol, c.Threshold.String(), timeframe, pct)
}

// Alert kinds
const (
	AlertCrossing = "CROSSING"
	AlertStatus   = "STATUS"
)

// Alert is a notification handed to the alert sink.
type Alert struct {
	Kind   string
	Symbol string
	Text   string
	SentAt time.Time
}
