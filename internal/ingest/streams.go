package ingest

import "strings"

// StreamName returns the kline stream key for a symbol and timeframe.
func StreamName(symbol, timeframe string) string {
	return strings.ToLower(symbol) + "@kline_" + timeframe
}

// StreamNames returns the symbol x timeframe cross product, symbol-major.
func StreamNames(symbols, timeframes []string) []string {
	names := make([]string, 0, len(symbols)*len(timeframes))
	for _, symbol := range symbols {
		for _, tf := range timeframes {
			names = append(names, StreamName(symbol, tf))
		}
	}
	return names
}

// StreamURL builds the combined-stream endpoint for the given streams.
// Stream names only contain [a-z0-9@_] so they are joined unescaped.
func StreamURL(base string, streams []string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "streams=" + strings.Join(streams, "/")
}
