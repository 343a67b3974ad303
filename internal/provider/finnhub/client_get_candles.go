package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strconv"
)

const (
	statusOK     = "ok"
	statusNoData = "no_data"
)

// Candles is the raw candle series returned by the Finnhub API: parallel
// arrays indexed by row. Elements are nil where the upstream reported
// no value.
type Candles struct {
	Close  []*float64 `json:"c"`
	High   []*float64 `json:"h"`
	Low    []*float64 `json:"l"`
	Open   []*float64 `json:"o"`
	Status string     `json:"s"`
	Times  []int64    `json:"t"`
	Volume []*float64 `json:"v"`
}

// GetCandles retrieves a candle series for a symbol between two unix
// timestamps. The resolution is validated before any network call.
func (c *FinnhubAPIClient) GetCandles(ctx context.Context, symbol string, resolution Resolution, from, to int64, opts ...FinnhubAPIClientOption) (Candles, error) {
	if !resolution.Valid() {
		return Candles{}, fmt.Errorf("invalid resolution %q", resolution)
	}

	var override = &FinnhubAPIClient{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)
	query.Add("symbol", symbol)
	query.Add("resolution", string(resolution))
	query.Add("from", strconv.FormatInt(from, 10))
	query.Add("to", strconv.FormatInt(to, 10))

	url := fmt.Sprintf("%s/stock/candle?%s", override.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Candles{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return Candles{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Candles{}, newStatusError(res)
	}

	var candles Candles
	if err := json.NewDecoder(res.Body).Decode(&candles); err != nil {
		return Candles{}, fmt.Errorf("decoding candle response: %w", err)
	}
	if candles.Status == statusNoData {
		return Candles{}, ErrNoData
	}
	if candles.Status != statusOK {
		return Candles{}, fmt.Errorf("unexpected candle status %q", candles.Status)
	}
	return candles, nil
}
