package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
)

// Quote is the raw quote shape returned by the Finnhub API. Pointer
// fields are nil when the upstream omitted the value.
type Quote struct {
	Current       *float64 `json:"c"`
	Change        *float64 `json:"d"`
	PercentChange *float64 `json:"dp"`
	High          *float64 `json:"h"`
	Low           *float64 `json:"l"`
	Open          *float64 `json:"o"`
	PreviousClose *float64 `json:"pc"`
	Timestamp     *int64   `json:"t"`
}

// GetQuote retrieves the latest quote for a symbol.
func (c *FinnhubAPIClient) GetQuote(ctx context.Context, symbol string, opts ...FinnhubAPIClientOption) (Quote, error) {
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

	url := fmt.Sprintf("%s/quote?%s", override.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Quote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Quote{}, newStatusError(res)
	}

	var quote Quote
	if err := json.NewDecoder(res.Body).Decode(&quote); err != nil {
		return Quote{}, fmt.Errorf("decoding quote response: %w", err)
	}
	return quote, nil
}
