package finnhub_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	finnhub "marketdata/internal/provider/finnhub"
)

func TestGetCandles(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "test-token", req.URL.Query().Get("token"))
			require.Contains(t, req.URL.Path, "/stock/candle")
			require.Equal(t, "AAPL", req.URL.Query().Get("symbol"))
			require.Equal(t, "D", req.URL.Query().Get("resolution"))
			require.Equal(t, "1569297600", req.URL.Query().Get("from"))
			require.Equal(t, "1569384000", req.URL.Query().Get("to"))

			buffer := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buffer).Encode(map[string]any{
				"c": []any{217.68, 221.03},
				"h": []any{218.03, 221.37},
				"l": []any{216.96, 217.52},
				"o": []any{217.15, 218.55},
				"s": "ok",
				"t": []any{1569297600, 1569384000},
				"v": []any{33463820, 24018876},
			}))

			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(buffer),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new Finnhub API client
	client, err := finnhub.NewFinnhubAPIClient("test-token", finnhub.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: call GetCandles
	candles, err := client.GetCandles(context.Background(), "AAPL", finnhub.ResolutionDay, 1569297600, 1569384000)
	require.NoError(t, err)

	// Assert: parallel arrays should be unmarshalled row by row.
	require.Len(t, candles.Close, 2)
	require.Len(t, candles.Times, 2)
	require.InEpsilon(t, 217.68, *candles.Close[0], 0.0001)
	require.Equal(t, int64(1569384000), candles.Times[1])
	require.InEpsilon(t, 24018876.0, *candles.Volume[1], 0.0001)
}

func TestGetCandles_InvalidResolutionFailsFast(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: no network call is issued for an invalid resolution.
	httpClient.EXPECT().
		Do(gomock.Any()).
		Times(0)

	// Arrange: setup a new Finnhub API client
	client, err := finnhub.NewFinnhubAPIClient("", finnhub.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: call GetCandles with a bogus resolution
	_, err = client.GetCandles(context.Background(), "AAPL", finnhub.Resolution("2"), 0, 100)
	require.Error(t, err)
}

func TestGetCandles_ErrNoData(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method with a no_data status
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			buffer := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buffer).Encode(map[string]any{"s": "no_data"}))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(buffer),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new Finnhub API client
	client, err := finnhub.NewFinnhubAPIClient("", finnhub.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: call GetCandles
	_, err = client.GetCandles(context.Background(), "AAPL", finnhub.ResolutionDay, 0, 100)

	// Assert: a no-data status is a terminal error, not an empty series.
	require.ErrorIs(t, err, finnhub.ErrNoData)
}

func TestGetCandles_ErrUnexpectedStatusCode(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(bytes.NewReader([]byte{})),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new Finnhub API client
	client, err := finnhub.NewFinnhubAPIClient("", finnhub.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: call GetCandles
	_, err = client.GetCandles(context.Background(), "AAPL", finnhub.ResolutionDay, 0, 100)
	require.Error(t, err)

	var statusErr *finnhub.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestGetCandles_ErrDecodingResponse(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			buffer := &bytes.Buffer{}
			buffer.WriteString("invalid json")
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(buffer),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new Finnhub API client
	client, err := finnhub.NewFinnhubAPIClient("", finnhub.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act: call GetCandles
	_, err = client.GetCandles(context.Background(), "AAPL", finnhub.ResolutionDay, 0, 100)
	require.Error(t, err)
}
