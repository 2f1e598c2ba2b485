// Package ingest handles the exchange catalog, the multiplexed kline sockets and message parsing.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/candlewatch/engine/internal/store"
	"github.com/shopspring/decimal"
)

// EventKline is the event type of a candle update.
const EventKline = "kline"

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("malformed stream message")

// ParseError reports an inbound frame that could not be turned into a candle.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// StreamEnvelope is the combined-stream wrapper around every payload.
type StreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// KlineEvent is the payload of a kline stream.
type KlineEvent struct {
	EventType string     `json:"e"`
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	Kline     *KlineData `json:"k"`
}

// KlineData carries the bar itself. Prices are strings to preserve precision.
type KlineData struct {
	OpenTime  *int64 `json:"t"`
	CloseTime int64  `json:"T"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Final     bool   `json:"x"`
}

// ParseMessage decodes one multiplexed frame.
// It returns a nil candle with a nil error for frames that are not kline
// updates; the event type is returned when known.
func ParseMessage(data []byte) (*store.Candle, string, error) {
	var envelope StreamEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, "", &ParseError{Reason: "invalid envelope", Err: err}
	}

	// Subscription acks and other control frames carry no data
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, "", nil
	}

	var event KlineEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		return nil, "", &ParseError{Reason: "invalid payload", Err: err}
	}

	if event.EventType != EventKline {
		return nil, event.EventType, nil
	}

	candle, err := parseKline(event)
	if err != nil {
		return nil, event.EventType, err
	}
	return candle, event.EventType, nil
}

// parseKline validates the kline payload and converts it to a candle.
func parseKline(event KlineEvent) (*store.Candle, error) {
	if event.Symbol == "" {
		return nil, &ParseError{Reason: "missing symbol"}
	}

	k := event.Kline
	if k == nil {
		return nil, &ParseError{Reason: "missing kline body"}
	}
	if k.Interval == "" {
		return nil, &ParseError{Reason: "missing interval"}
	}
	if k.OpenTime == nil {
		return nil, &ParseError{Reason: "missing open time"}
	}

	open, err := parsePrice("open", k.Open)
	if err != nil {
		return nil, err
	}
	if !open.IsPositive() {
		return nil, &ParseError{Reason: fmt.Sprintf("non-positive open price %s", k.Open)}
	}

	closePrice, err := parsePrice("close", k.Close)
	if err != nil {
		return nil, err
	}

	return &store.Candle{
		Symbol:    event.Symbol,
		Timeframe: k.Interval,
		OpenTime:  time.UnixMilli(*k.OpenTime),
		Open:      open,
		Close:     closePrice,
		Final:     k.Final,
	}, nil
}

// parsePrice parses a price string.
func parsePrice(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, &ParseError{Reason: "missing " + field + " price"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ParseError{Reason: "invalid " + field + " price", Err: err}
	}
	return d, nil
}
