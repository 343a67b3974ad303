package finnhub

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const baseURL = "https://finnhub.io/api/v1"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=finnhub_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FinnhubAPIClient is a client for the Finnhub API. It performs exactly
// one upstream request per call; retries belong to the layer above.
type FinnhubAPIClient struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// FinnhubAPIClientOption is a configuration option for the Finnhub API client.
type FinnhubAPIClientOption func(*FinnhubAPIClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) FinnhubAPIClientOption {
	return func(c *FinnhubAPIClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) FinnhubAPIClientOption {
	return func(c *FinnhubAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) FinnhubAPIClientOption {
	return func(c *FinnhubAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewFinnhubAPIClient creates a new Finnhub API client.
func NewFinnhubAPIClient(token string, options ...FinnhubAPIClientOption) (*FinnhubAPIClient, error) {
	var finnhubAPIClient = &FinnhubAPIClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if token != "" {
		// This is the query parameter used to authenticate the client.
		// https://finnhub.io/docs/api/authentication
		finnhubAPIClient.query.Add("token", token)
	}
	for _, option := range options {
		option(finnhubAPIClient)
	}
	return finnhubAPIClient, nil
}

// Resolution is a candle resolution accepted by the API.
type Resolution string

const (
	ResolutionMinute         Resolution = "1"
	ResolutionFiveMinutes    Resolution = "5"
	ResolutionFifteenMinutes Resolution = "15"
	ResolutionThirtyMinutes  Resolution = "30"
	ResolutionHour           Resolution = "60"
	ResolutionDay            Resolution = "D"
	ResolutionWeek           Resolution = "W"
	ResolutionMonth          Resolution = "M"
)

var resolutions = map[Resolution]struct{}{
	ResolutionMinute:         {},
	ResolutionFiveMinutes:    {},
	ResolutionFifteenMinutes: {},
	ResolutionThirtyMinutes:  {},
	ResolutionHour:           {},
	ResolutionDay:            {},
	ResolutionWeek:           {},
	ResolutionMonth:          {},
}

// Valid reports whether r is one of the resolutions the API accepts.
func (r Resolution) Valid() bool {
	_, ok := resolutions[r]
	return ok
}

// ErrNoData is returned when the API reports a no-data status for the
// requested range. It is terminal; an empty series is never cached.
var ErrNoData = errors.New("finnhub: no data for requested range")

// StatusError is the normalized shape of a non-2xx upstream response.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// RetryAfter is the server's retry hint, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("finnhub: unexpected status code %d (retry after %s)", e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("finnhub: unexpected status code %d", e.Code)
}

// HTTPStatus exposes the status code to the retry classifier.
func (e *StatusError) HTTPStatus() int { return e.Code }

// RetryAfterHint exposes the server's retry hint to the backoff policy.
func (e *StatusError) RetryAfterHint() time.Duration { return e.RetryAfter }

// newStatusError builds a StatusError from a response, parsing any
// Retry-After header expressed in seconds.
func newStatusError(res *http.Response) *StatusError {
	e := &StatusError{Code: res.StatusCode}
	if v := res.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}
