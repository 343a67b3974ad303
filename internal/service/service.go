// Package service is the fetch orchestrator: it turns bursty,
// rate-limited, occasionally-failing upstream calls into a stable
// internal API. Each lookup consults a freshness cache, coalesces
// concurrent callers onto one in-flight upstream call, retries
// transient failures with backoff, and degrades to stale cached data
// when a live fetch fails.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"marketdata/internal/cache"
	"marketdata/internal/limiter"
	"marketdata/internal/market"
	"marketdata/internal/provider/finnhub"
	"marketdata/internal/retry"
)

const (
	// DefaultQuoteTTL keeps quotes fresh only briefly; prices move fast.
	DefaultQuoteTTL = 5 * time.Second
	// DefaultChartTTL is longer; re-requesting a full series is expensive.
	DefaultChartTTL = 30 * time.Second
	// DefaultStaleFactor sizes the stale-serving window as a multiple
	// of the TTL, for both resource kinds.
	DefaultStaleFactor = 24

	DefaultMaxConcurrency  = 4
	DefaultMaxBatchSymbols = 50
)

// Fetcher issues single upstream calls for quotes and candle series.
// Implementations perform no retries of their own.
type Fetcher interface {
	GetQuote(ctx context.Context, symbol string, opts ...finnhub.FinnhubAPIClientOption) (finnhub.Quote, error)
	GetCandles(ctx context.Context, symbol string, resolution finnhub.Resolution, from, to int64, opts ...finnhub.FinnhubAPIClientOption) (finnhub.Candles, error)
}

// Config configures a Service. Zero fields fall back to defaults.
type Config struct {
	// Fetcher is the upstream provider client. Required.
	Fetcher Fetcher
	// MarketName tags normalized results (e.g. "US").
	MarketName string
	// SourceName tags normalized results (e.g. "finnhub").
	SourceName string
	// Currency tags normalized quotes.
	Currency string
	// QuoteTTL and ChartTTL are the freshness windows per resource kind.
	QuoteTTL time.Duration
	ChartTTL time.Duration
	// StaleFactor sizes the stale-serving window as StaleFactor * TTL.
	StaleFactor int
	// MaxAttempts and BaseDelay tune the retry policy.
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxConcurrency bounds concurrent upstream calls for batch fan-out.
	MaxConcurrency int
	// MaxRequestsPerMinute optionally paces every upstream attempt with
	// a token bucket. Zero disables pacing.
	MaxRequestsPerMinute int
	Burst                int
	// MaxBatchSymbols caps GetQuotes input after deduplication.
	MaxBatchSymbols int
	// Logger records retries, stale fallbacks and sweeps. Optional.
	Logger *zerolog.Logger
	// Now is the clock; tests override it.
	Now func() time.Time
}

// Service owns the cache, coalescing and limiter state for one
// provider. Construct it once and share it; it is safe for concurrent
// use.
type Service struct {
	fetcher    Fetcher
	marketName string
	sourceName string
	currency   string

	quoteTTL   time.Duration
	chartTTL   time.Duration
	quoteStale time.Duration
	chartStale time.Duration
	maxBatch   int

	quotes  *cache.Cache[market.Quote]
	charts  *cache.Cache[market.Chart]
	sf      singleflight.Group
	limiter *limiter.Limiter
	bucket  *limiter.TokenBucket
	retrier *retry.Policy
	log     zerolog.Logger
	now     func() time.Time
}

// New builds a Service from cfg.
func New(cfg Config) (*Service, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("service: fetcher is required")
	}

	quoteTTL := cfg.QuoteTTL
	if quoteTTL <= 0 {
		quoteTTL = DefaultQuoteTTL
	}
	chartTTL := cfg.ChartTTL
	if chartTTL <= 0 {
		chartTTL = DefaultChartTTL
	}
	factor := cfg.StaleFactor
	if factor <= 0 {
		factor = DefaultStaleFactor
	}
	maxBatch := cfg.MaxBatchSymbols
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSymbols
	}
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = DefaultMaxConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	s := &Service{
		fetcher:    cfg.Fetcher,
		marketName: cfg.MarketName,
		sourceName: cfg.SourceName,
		currency:   cfg.Currency,
		quoteTTL:   quoteTTL,
		chartTTL:   chartTTL,
		quoteStale: time.Duration(factor) * quoteTTL,
		chartStale: time.Duration(factor) * chartTTL,
		maxBatch:   maxBatch,
		quotes:     cache.New[market.Quote](time.Duration(factor) * quoteTTL),
		charts:     cache.New[market.Chart](time.Duration(factor) * chartTTL),
		limiter:    limiter.New(maxConc),
		retrier:    &retry.Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay, Logger: cfg.Logger},
		log:        log,
		now:        now,
	}
	s.quotes.Now = now
	s.charts.Now = now

	if cfg.MaxRequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.bucket = limiter.NewTokenBucket(float64(cfg.MaxRequestsPerMinute)/60.0, burst)
	}
	return s, nil
}

// resolutions maps API intervals onto provider resolutions.
var resolutions = map[market.Interval]finnhub.Resolution{
	market.IntervalMinute:         finnhub.ResolutionMinute,
	market.IntervalFiveMinutes:    finnhub.ResolutionFiveMinutes,
	market.IntervalFifteenMinutes: finnhub.ResolutionFifteenMinutes,
	market.IntervalThirtyMinutes:  finnhub.ResolutionThirtyMinutes,
	market.IntervalHour:           finnhub.ResolutionHour,
	market.IntervalDay:            finnhub.ResolutionDay,
	market.IntervalWeek:           finnhub.ResolutionWeek,
	market.IntervalMonth:          finnhub.ResolutionMonth,
}

// GetQuote returns the normalized quote for a symbol: fresh from cache
// when possible, otherwise fetched (coalesced with concurrent callers),
// otherwise stale from cache when the live fetch fails.
func (s *Service) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	sym, err := market.CanonicalSymbol(symbol)
	if err != nil {
		return market.Quote{}, err
	}

	if q, ok := s.quotes.Get(sym); ok {
		return q, nil
	}

	key := "quote:" + sym
	v, err, _ := s.sf.Do(key, func() (any, error) {
		// Another caller may have refreshed this key while we queued on
		// the flight group; a cache re-check avoids a redundant fetch.
		if q, ok := s.quotes.Get(sym); ok {
			return q, nil
		}

		// The shared call runs to completion even if the originating
		// caller gives up; the client timeout is the latency bound.
		callCtx := context.WithoutCancel(ctx)

		var raw finnhub.Quote
		ferr := s.retrier.Do(callCtx, func(ctx context.Context) error {
			if err := s.pace(ctx); err != nil {
				return err
			}
			var err error
			raw, err = s.fetcher.GetQuote(ctx, sym)
			return err
		})
		if ferr != nil {
			return nil, ferr
		}

		q := normalizeQuote(sym, s.marketName, s.sourceName, s.currency, raw, s.now())
		s.quotes.Set(sym, q, s.quoteTTL)
		return q, nil
	})
	if err != nil {
		if q, stale, ok := s.quotes.GetWithStale(sym, s.quoteStale); ok {
			s.log.Warn().Err(err).Str("symbol", sym).Bool("stale", stale).
				Msg("live quote fetch failed, serving cached value")
			q.Stale = stale
			return q, nil
		}
		return market.Quote{}, err
	}
	return v.(market.Quote), nil
}

// GetChart returns the normalized candle series for a symbol over the
// trailing rangeDays at the given interval, with the same cache,
// coalescing and stale-fallback behavior as GetQuote.
func (s *Service) GetChart(ctx context.Context, symbol string, interval market.Interval, rangeDays int) (market.Chart, error) {
	sym, err := market.CanonicalSymbol(symbol)
	if err != nil {
		return market.Chart{}, err
	}
	resolution, ok := resolutions[interval]
	if !ok {
		return market.Chart{}, &market.ValidationError{Field: "interval", Reason: fmt.Sprintf("unknown interval %q", interval)}
	}
	if err := market.ValidateRangeDays(rangeDays); err != nil {
		return market.Chart{}, err
	}

	key := fmt.Sprintf("chart:%s:%s:%d", sym, interval, rangeDays)

	if ch, ok := s.charts.Get(key); ok {
		return ch.Clone(), nil
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		if ch, ok := s.charts.Get(key); ok {
			return ch, nil
		}

		callCtx := context.WithoutCancel(ctx)
		now := s.now()
		from := now.AddDate(0, 0, -rangeDays).Unix()
		to := now.Unix()

		var raw finnhub.Candles
		ferr := s.retrier.Do(callCtx, func(ctx context.Context) error {
			if err := s.pace(ctx); err != nil {
				return err
			}
			var err error
			raw, err = s.fetcher.GetCandles(ctx, sym, resolution, from, to)
			return err
		})
		if ferr != nil {
			return nil, ferr
		}

		ch := market.Chart{
			Symbol:    sym,
			Market:    s.marketName,
			Source:    s.sourceName,
			FetchedAt: now,
			Interval:  interval,
			RangeDays: rangeDays,
			Candles:   normalizeCandles(raw),
		}
		s.charts.Set(key, ch, s.chartTTL)
		return ch, nil
	})
	if err != nil {
		if ch, stale, ok := s.charts.GetWithStale(key, s.chartStale); ok {
			s.log.Warn().Err(err).Str("symbol", sym).Bool("stale", stale).
				Msg("live chart fetch failed, serving cached value")
			out := ch.Clone()
			out.Stale = stale
			return out, nil
		}
		return market.Chart{}, err
	}
	return v.(market.Chart).Clone(), nil
}

// GetQuotes fetches quotes for a batch of symbols. The input is
// canonicalized and deduplicated (first occurrence wins) and capped at
// MaxBatchSymbols; each unique symbol fans out through the concurrency
// limiter to the single-quote path. Results preserve deduplicated
// input order. Symbols that fail both live and stale lookups are
// omitted; an error is returned only when every symbol fails.
func (s *Service) GetQuotes(ctx context.Context, symbols []string) ([]market.Quote, error) {
	if len(symbols) == 0 {
		return nil, &market.ValidationError{Field: "symbols", Reason: "must not be empty"}
	}

	uniq := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		sym, err := market.CanonicalSymbol(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		uniq = append(uniq, sym)
	}
	if len(uniq) > s.maxBatch {
		return nil, &market.ValidationError{
			Field:  "symbols",
			Reason: fmt.Sprintf("too many symbols: %d (max %d)", len(uniq), s.maxBatch),
		}
	}

	results := make([]market.Quote, len(uniq))
	errs := make([]error, len(uniq))
	var wg sync.WaitGroup
	for i, sym := range uniq {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			errs[i] = s.limiter.Do(ctx, func() error {
				q, err := s.GetQuote(ctx, sym)
				if err != nil {
					return err
				}
				results[i] = q
				return nil
			})
		}(i, sym)
	}
	wg.Wait()

	out := make([]market.Quote, 0, len(uniq))
	var firstErr error
	for i, sym := range uniq {
		if errs[i] != nil {
			s.log.Warn().Err(errs[i]).Str("symbol", sym).Msg("batch quote failed")
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		out = append(out, results[i])
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// SweepCaches drops entries past their stale deadline from both caches
// and reports how many were removed.
func (s *Service) SweepCaches() int {
	removed := s.quotes.Sweep() + s.charts.Sweep()
	if removed > 0 {
		s.log.Debug().Int("removed", removed).
			Int("quotes", s.quotes.Len()).Int("charts", s.charts.Len()).
			Msg("cache sweep")
	}
	return removed
}

// pace waits for the outbound token bucket when one is configured.
func (s *Service) pace(ctx context.Context) error {
	if s.bucket == nil {
		return nil
	}
	return s.bucket.Wait(ctx)
}
