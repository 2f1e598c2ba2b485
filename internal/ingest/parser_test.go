package ingest

import (
	"errors"
	"testing"
)

func TestParseMessageKline(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@kline_5m","data":{"e":"kline","E":1700000000123,"s":"BTCUSDT",
		"k":{"t":1700000000000,"T":1700000299999,"s":"BTCUSDT","i":"5m","o":"100.00","c":"106.00","h":"107","l":"99","x":false}}}`)

	candle, evType, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evType != EventKline {
		t.Errorf("Expected event type kline, got %q", evType)
	}
	if candle == nil {
		t.Fatal("Expected a candle")
	}
	if candle.Symbol != "BTCUSDT" || candle.Timeframe != "5m" {
		t.Errorf("Unexpected identity %s/%s", candle.Symbol, candle.Timeframe)
	}
	if candle.OpenTime.UnixMilli() != 1700000000000 {
		t.Errorf("Unexpected open time %d", candle.OpenTime.UnixMilli())
	}
	if candle.Open.String() != "100" || candle.Close.String() != "106" {
		t.Errorf("Unexpected prices %s/%s", candle.Open, candle.Close)
	}
	if candle.Final {
		t.Error("Expected non-final candle")
	}
	if got := candle.PercentChange().StringFixed(2); got != "6.00" {
		t.Errorf("Expected 6.00%%, got %s", got)
	}
}

func TestParseMessageIgnoresOtherEvents(t *testing.T) {
	tests := map[string]string{
		"agg trade":    `{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"1"}}`,
		"subscription": `{"result":null,"id":1}`,
		"null data":    `{"stream":"x","data":null}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			candle, _, err := ParseMessage([]byte(raw))
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if candle != nil {
				t.Errorf("Expected no candle, got %+v", candle)
			}
		})
	}
}

func TestParseMessageErrors(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"data":`,
		"payload array":  `{"data":[1,2]}`,
		"missing symbol": `{"data":{"e":"kline","k":{"t":1,"i":"5m","o":"1","c":"1"}}}`,
		"missing kline":  `{"data":{"e":"kline","s":"BTCUSDT"}}`,
		"missing tf":     `{"data":{"e":"kline","s":"BTCUSDT","k":{"t":1,"o":"1","c":"1"}}}`,
		"missing time":   `{"data":{"e":"kline","s":"BTCUSDT","k":{"i":"5m","o":"1","c":"1"}}}`,
		"missing open":   `{"data":{"e":"kline","s":"BTCUSDT","k":{"t":1,"i":"5m","c":"1"}}}`,
		"bad close":      `{"data":{"e":"kline","s":"BTCUSDT","k":{"t":1,"i":"5m","o":"1","c":"abc"}}}`,
		"zero open":      `{"data":{"e":"kline","s":"BTCUSDT","k":{"t":1,"i":"5m","o":"0","c":"1"}}}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			candle, _, err := ParseMessage([]byte(raw))
			if candle != nil {
				t.Errorf("Expected no candle, got %+v", candle)
			}
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !errors.Is(err, ErrParse) {
				t.Errorf("Expected ErrParse, got %v", err)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("Expected *ParseError, got %T", err)
			}
		})
	}
}

func TestParseMessageZeroOpenTime(t *testing.T) {
	raw := []byte(`{"data":{"e":"kline","s":"ETHUSDT","k":{"t":0,"i":"1h","o":"2000","c":"1900","x":true}}}`)
	candle, _, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candle.OpenTime.UnixMilli() != 0 || !candle.Final {
		t.Errorf("Unexpected candle %+v", candle)
	}
}
