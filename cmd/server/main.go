package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"marketdata/internal/config"
	"marketdata/internal/httpx"
	"marketdata/internal/provider/finnhub"
	"marketdata/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("loading config")
	}

	logger := newLogger(cfg.Server.LogLevel)

	if cfg.Finnhub.APIKey == "" {
		logger.Warn().Msg("FINNHUB_API_KEY not set; upstream calls will be rejected")
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	httpClient := httpx.New(timeout)

	clientOpts := []finnhub.FinnhubAPIClientOption{
		finnhub.WithHTTPClient(httpClient.HTTP),
		finnhub.WithHeader(http.Header{"User-Agent": []string{httpClient.UserAgent}}),
	}
	if cfg.Finnhub.BaseURL != "" {
		clientOpts = append(clientOpts, finnhub.WithBaseURL(cfg.Finnhub.BaseURL))
	}
	client, err := finnhub.NewFinnhubAPIClient(cfg.Finnhub.APIKey, clientOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("creating finnhub client")
	}

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
		logger.Fatal().Err(err).Msg("creating service")
	}

	// Staleness is evaluated lazily on reads; the sweep only bounds
	// memory held by keys that are never requested again.
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(1).Minute().Do(func() { svc.SweepCaches() }); err != nil {
		logger.Warn().Err(err).Msg("scheduling cache sweep")
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newHandler(svc, timeout, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server")
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}
