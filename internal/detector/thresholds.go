package detector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultThreshold applies to timeframes missing from the table.
var DefaultThreshold = decimal.NewFromInt(5)

// ThresholdTable maps a timeframe to the percent move that counts as a crossing.
type ThresholdTable struct {
	byTimeframe map[string]decimal.Decimal
	fallback    decimal.Decimal
}

// NewThresholdTable validates and builds a table.
func NewThresholdTable(byTimeframe map[string]decimal.Decimal, fallback decimal.Decimal) (ThresholdTable, error) {
	if fallback.IsZero() {
		fallback = DefaultThreshold
	}
	if !fallback.IsPositive() {
		return ThresholdTable{}, fmt.Errorf("fallback threshold must be positive, got %s", fallback)
	}

	table := make(map[string]decimal.Decimal, len(byTimeframe))
	for tf, v := range byTimeframe {
		if tf == "" {
			return ThresholdTable{}, fmt.Errorf("empty timeframe in threshold table")
		}
		if !v.IsPositive() {
			return ThresholdTable{}, fmt.Errorf("threshold for %s must be positive, got %s", tf, v)
		}
		table[tf] = v
	}

	return ThresholdTable{byTimeframe: table, fallback: fallback}, nil
}

// For returns the threshold of a timeframe.
func (t ThresholdTable) For(timeframe string) decimal.Decimal {
	if v, ok := t.byTimeframe[timeframe]; ok {
		return v
	}
	if t.fallback.IsZero() {
		return DefaultThreshold
	}
	return t.fallback
}

func (t ThresholdTable) String() string {
	keys := make([]string, 0, len(t.byTimeframe))
	for tf := range t.byTimeframe {
		keys = append(keys, tf)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, tf := range keys {
		parts = append(parts, tf+":"+t.byTimeframe[tf].String())
	}
	parts = append(parts, "default:"+t.For("").String())
	return strings.Join(parts, ",")
}
