package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/candlewatch/engine/internal/store"
)

const (
	// ExchangeInfoURL is the futures catalog endpoint
	ExchangeInfoURL = "https://fapi.binance.com/fapi/v1/exchangeInfo"
	// DefaultQuoteAsset is the stablecoin instruments must be quoted in
	DefaultQuoteAsset = "USDT"
	// DefaultCatalogTimeout bounds one catalog request
	DefaultCatalogTimeout = 10 * time.Second
)

// ErrDiscovery is matched by every DiscoveryError.
var ErrDiscovery = errors.New("instrument discovery failed")

// DiscoveryError reports a catalog fetch that produced no usable instruments.
type DiscoveryError struct {
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery: %s: %v", e.Reason, e.Err)
	}
	return "discovery: " + e.Reason
}

func (e *DiscoveryError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDiscovery, e.Err}
	}
	return []error{ErrDiscovery}
}

// ExchangeInfo is the subset of the catalog response we read.
// Symbols is a pointer so a missing field can be told apart from an empty list.
type ExchangeInfo struct {
	Symbols *[]SymbolInfo `json:"symbols"`
}

// SymbolInfo is one catalog entry.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	QuoteAsset string `json:"quoteAsset"`
	Status     string `json:"status"`
}

// Catalog fetches the tradable-instrument universe.
type Catalog struct {
	url        string
	quoteAsset string
	client     *http.Client
}

// NewCatalog creates a new Catalog.
func NewCatalog(url, quoteAsset string, timeout time.Duration) *Catalog {
	if url == "" {
		url = ExchangeInfoURL
	}
	if quoteAsset == "" {
		quoteAsset = DefaultQuoteAsset
	}
	if timeout <= 0 {
		timeout = DefaultCatalogTimeout
	}

	return &Catalog{
		url:        url,
		quoteAsset: quoteAsset,
		client:     &http.Client{Timeout: timeout},
	}
}

// FetchInstruments returns the tradable instruments quoted in the configured
// asset, in catalog order.
func (c *Catalog) FetchInstruments(ctx context.Context) ([]store.Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &DiscoveryError{Reason: "create request failed", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{Reason: fmt.Sprintf("unexpected status code: %d", resp.StatusCode)}
	}

	var info ExchangeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &DiscoveryError{Reason: "failed to decode catalog", Err: err}
	}

	if info.Symbols == nil {
		return nil, &DiscoveryError{Reason: "no symbols found in response"}
	}

	instruments := FilterInstruments(*info.Symbols, c.quoteAsset)
	if len(instruments) == 0 {
		return nil, &DiscoveryError{Reason: fmt.Sprintf("no trading %s instruments", c.quoteAsset)}
	}

	slog.Info("fetched_instruments",
		"catalog_count", len(*info.Symbols),
		"tradable_count", len(instruments),
		"quote_asset", c.quoteAsset,
	)

	return instruments, nil
}

// FilterInstruments keeps trading instruments quoted in quoteAsset, preserving order.
func FilterInstruments(symbols []SymbolInfo, quoteAsset string) []store.Instrument {
	var instruments []store.Instrument
	seen := make(map[string]bool)

	for _, s := range symbols {
		if s.Symbol == "" || s.QuoteAsset != quoteAsset || s.Status != store.StatusTrading {
			continue
		}
		if seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true

		instruments = append(instruments, store.Instrument{
			Symbol:     s.Symbol,
			QuoteAsset: s.QuoteAsset,
			Status:     s.Status,
		})
	}

	return instruments
}

// Symbols extracts the ordered symbol list.
func Symbols(instruments []store.Instrument) []string {
	out := make([]string, 0, len(instruments))
	for _, in := range instruments {
		out = append(out, in.Symbol)
	}
	return out
}
