package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	LogLevel          string `json:"log_level"`
}

type Finnhub struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	Market   string `json:"market"`
	Currency string `json:"currency"`

	QuoteTTLSeconds      int `json:"quote_ttl_sec"`
	ChartTTLSeconds      int `json:"chart_ttl_sec"`
	StaleFactor          int `json:"stale_factor"`
	MaxAttempts          int `json:"max_attempts"`
	BaseDelayMillis      int `json:"base_delay_ms"`
	MaxConcurrency       int `json:"max_concurrency"`
	MaxRequestsPerMinute int `json:"max_requests_per_minute"`
	Burst                int `json:"burst"`
	MaxBatchSymbols      int `json:"max_batch_symbols"`
}

type Config struct {
	Server  Server  `json:"server"`
	Finnhub Finnhub `json:"finnhub"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10, LogLevel: "info"},
		Finnhub: Finnhub{
			Market:               "US",
			Currency:             "USD",
			QuoteTTLSeconds:      5,
			ChartTTLSeconds:      30,
			StaleFactor:          24,
			MaxAttempts:          3,
			BaseDelayMillis:      500,
			MaxConcurrency:       4,
			MaxRequestsPerMinute: 60,
			Burst:                10,
			MaxBatchSymbols:      50,
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does
// not exist, it returns defaults. Environment variables override select
// fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Finnhub.APIKey = v
	}
	if v := os.Getenv("FINNHUB_BASE_URL"); v != "" {
		cfg.Finnhub.BaseURL = v
	}
	if v := os.Getenv("MARKET"); v != "" {
		cfg.Finnhub.Market = v
	}
	if v := os.Getenv("CURRENCY"); v != "" {
		cfg.Finnhub.Currency = v
	}
	if v := os.Getenv("QUOTE_TTL_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Finnhub.QuoteTTLSeconds = x
		}
	}
	if v := os.Getenv("CHART_TTL_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Finnhub.ChartTTLSeconds = x
		}
	}
	if v := os.Getenv("STALE_FACTOR"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Finnhub.StaleFactor = x
		}
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Finnhub.MaxAttempts = x
		}
	}
	if v := os.Getenv("BASE_DELAY_MS"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Finnhub.BaseDelayMillis = x
		}
	}
	if v := os.Getenv("MAX_CONCURRENCY"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Finnhub.MaxConcurrency = x
		}
	}
	if v := os.Getenv("FINNHUB_MAX_RPM"); v != "" {
		if x := atoi(v); x >= 0 {
			cfg.Finnhub.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("FINNHUB_BURST"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Finnhub.Burst = x
		}
	}
	if v := os.Getenv("MAX_BATCH_SYMBOLS"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Finnhub.MaxBatchSymbols = x
		}
	}
}

func atoi(s string) int {
	var x int
	_, _ = fmt.Sscanf(s, "%d", &x)
	return x
}
