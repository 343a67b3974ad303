package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"marketdata/internal/config"
	"marketdata/internal/httpx"
	"marketdata/internal/market"
	"marketdata/internal/provider/finnhub"
	"marketdata/internal/service"
)

// One-shot fetch tool for inspecting what the service layer returns
// for a symbol without running the server.
func main() {
	var symbolsCSV string
	var chartSymbol string
	var interval string
	var days int
	var timeout int
	var configPath string

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "AAPL"), "comma-separated ticker symbols to quote")
	flag.StringVar(&chartSymbol, "chart", getenv("CHART_SYMBOL", ""), "fetch a candle chart for this symbol instead of quotes")
	flag.StringVar(&interval, "interval", getenv("CHART_INTERVAL", "1d"), "chart candle interval (1m,5m,15m,30m,1h,1d,1wk,1mo)")
	flag.IntVar(&days, "days", getenvInt("CHART_DAYS", 30), "chart range in days")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout != 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}
	if cfg.Finnhub.APIKey == "" {
		log.Fatal("FINNHUB_API_KEY not set; set config.json api_key or the env var")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	clientOpts := []finnhub.FinnhubAPIClientOption{
		finnhub.WithHTTPClient(httpClient.HTTP),
		finnhub.WithHeader(http.Header{"User-Agent": []string{httpClient.UserAgent}}),
	}
	if cfg.Finnhub.BaseURL != "" {
		clientOpts = append(clientOpts, finnhub.WithBaseURL(cfg.Finnhub.BaseURL))
	}
	client, err := finnhub.NewFinnhubAPIClient(cfg.Finnhub.APIKey, clientOpts...)
	if err != nil {
		log.Fatalf("finnhub client: %v", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	svc, err := service.New(service.Config{
		Fetcher:              client,
		MarketName:           cfg.Finnhub.Market,
		SourceName:           "finnhub",
		Currency:             cfg.Finnhub.Currency,
		QuoteTTL:             time.Duration(cfg.Finnhub.QuoteTTLSeconds) * time.Second,
		ChartTTL:             time.Duration(cfg.Finnhub.ChartTTLSeconds) * time.Second,
		StaleFactor:          cfg.Finnhub.StaleFactor,
		MaxAttempts:          cfg.Finnhub.MaxAttempts,
		BaseDelay:            time.Duration(cfg.Finnhub.BaseDelayMillis) * time.Millisecond,
		MaxConcurrency:       cfg.Finnhub.MaxConcurrency,
		MaxRequestsPerMinute: cfg.Finnhub.MaxRequestsPerMinute,
		Burst:                cfg.Finnhub.Burst,
		MaxBatchSymbols:      cfg.Finnhub.MaxBatchSymbols,
		Logger:               &logger,
	})
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
	defer cancel()

	if chartSymbol != "" {
		iv, err := market.ParseInterval(interval)
		if err != nil {
			log.Fatalf("interval: %v", err)
		}
		chart, err := svc.GetChart(ctx, chartSymbol, iv, days)
		if err != nil {
			log.Fatalf("chart %s: %v", chartSymbol, err)
		}
		printJSON(chart)
		return
	}

	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		log.Fatal("no symbols provided")
	}
	quotes, err := svc.GetQuotes(ctx, symbols)
	if err != nil {
		log.Fatalf("quotes: %v", err)
	}
	printJSON(struct {
		Quotes []market.Quote `json:"quotes"`
	}{Quotes: quotes})
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x != 0 {
			return x
		}
	}
	return def
}
