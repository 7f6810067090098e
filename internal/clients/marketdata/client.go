// Package marketdata fetches quotes from the Yahoo Finance quote API.
// Failures surface as ProviderError so callers can isolate them per
// symbol instead of aborting a whole refresh batch.
package marketdata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheelhouse/internal/domain"
)

// Quote is a single symbol snapshot
type Quote struct {
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client is a quote API client
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new quote client. baseURL points at the quote
// host, e.g. https://query1.finance.yahoo.com; tests swap in a local
// server.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "marketdata").Logger(),
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol              string   `json:"symbol"`
			RegularMarketPrice  *float64 `json:"regularMarketPrice"`
			Bid                 *float64 `json:"bid"`
			Ask                 *float64 `json:"ask"`
			RegularMarketVolume *int64   `json:"regularMarketVolume"`
			RegularMarketTime   *int64   `json:"regularMarketTime"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// GetQuote fetches the current quote for one symbol
func (c *Client) GetQuote(symbol string) (*Quote, error) {
	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,regularMarketPrice,bid,ask,regularMarketVolume,regularMarketTime")

	reqURL := c.baseURL + "/v7/finance/quote?" + params.Encode()

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, &domain.ProviderError{Symbol: symbol, Err: err}
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &domain.ProviderError{
			Symbol: symbol,
			Err:    fmt.Errorf("quote API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ProviderError{Symbol: symbol, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var result quoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &domain.ProviderError{Symbol: symbol, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if result.QuoteResponse.Error != nil {
		return nil, &domain.ProviderError{
			Symbol: symbol,
			Err:    fmt.Errorf("quote API error: %v", result.QuoteResponse.Error),
		}
	}
	if len(result.QuoteResponse.Result) == 0 {
		return nil, &domain.ProviderError{
			Symbol: symbol,
			Err:    fmt.Errorf("no quote data returned"),
		}
	}

	raw := result.QuoteResponse.Result[0]
	if raw.RegularMarketPrice == nil || *raw.RegularMarketPrice <= 0 {
		return nil, &domain.ProviderError{
			Symbol: symbol,
			Err:    fmt.Errorf("no valid market price in response"),
		}
	}

	quote := &Quote{
		Symbol:    symbol,
		Last:      decimal.NewFromFloat(*raw.RegularMarketPrice),
		Timestamp: time.Now().UTC(),
	}
	if raw.Bid != nil {
		quote.Bid = decimal.NewFromFloat(*raw.Bid)
	}
	if raw.Ask != nil {
		quote.Ask = decimal.NewFromFloat(*raw.Ask)
	}
	if raw.RegularMarketVolume != nil {
		quote.Volume = *raw.RegularMarketVolume
	}
	if raw.RegularMarketTime != nil {
		quote.Timestamp = time.Unix(*raw.RegularMarketTime, 0).UTC()
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("last", quote.Last.String()).
		Msg("Fetched quote")

	return quote, nil
}
