package market

import (
	"fmt"
	"strings"
	"time"
)

// Quote is the normalized quote shape served to the API layer.
// Numeric fields are nil when the upstream value is missing or
// non-finite; they are never coerced to zero.
type Quote struct {
	Symbol        string     `json:"symbol"`
	Market        string     `json:"market"`
	Source        string     `json:"source"`
	FetchedAt     time.Time  `json:"fetched_at"`
	Price         *float64   `json:"price"`
	Currency      string     `json:"currency"`
	Open          *float64   `json:"open"`
	PreviousClose *float64   `json:"previous_close"`
	DayHigh       *float64   `json:"day_high"`
	DayLow        *float64   `json:"day_low"`
	Change        *float64   `json:"change"`
	ChangePercent *float64   `json:"change_percent"`
	Timestamp     *time.Time `json:"timestamp"`
	Stale         bool       `json:"stale,omitempty"`
}

// Candle is a single OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume *float64  `json:"volume"`
}

// Chart is a normalized candle series. Candles are strictly increasing
// and unique by time.
type Chart struct {
	Symbol    string    `json:"symbol"`
	Market    string    `json:"market"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Interval  Interval  `json:"interval"`
	RangeDays int       `json:"range_days"`
	Candles   []Candle  `json:"candles"`
	Stale     bool      `json:"stale,omitempty"`
}

// Clone returns a copy of the chart with its own candle slice, so a
// caller cannot mutate a cached series.
func (c Chart) Clone() Chart {
	out := c
	out.Candles = make([]Candle, len(c.Candles))
	copy(out.Candles, c.Candles)
	return out
}

// Interval identifies a candle interval exposed by the API.
type Interval string

const (
	IntervalMinute         Interval = "1m"
	IntervalFiveMinutes    Interval = "5m"
	IntervalFifteenMinutes Interval = "15m"
	IntervalThirtyMinutes  Interval = "30m"
	IntervalHour           Interval = "1h"
	IntervalDay            Interval = "1d"
	IntervalWeek           Interval = "1wk"
	IntervalMonth          Interval = "1mo"
)

var intervals = map[Interval]struct{}{
	IntervalMinute:         {},
	IntervalFiveMinutes:    {},
	IntervalFifteenMinutes: {},
	IntervalThirtyMinutes:  {},
	IntervalHour:           {},
	IntervalDay:            {},
	IntervalWeek:           {},
	IntervalMonth:          {},
}

// ParseInterval validates and normalizes an interval string.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := intervals[iv]; !ok {
		return "", &ValidationError{Field: "interval", Reason: fmt.Sprintf("unknown interval %q", s)}
	}
	return iv, nil
}

const (
	// MinRangeDays and MaxRangeDays bound chart range requests.
	MinRangeDays = 1
	MaxRangeDays = 365

	maxSymbolLen = 32
)

// ValidateRangeDays rejects chart ranges outside [1, 365].
func ValidateRangeDays(days int) error {
	if days < MinRangeDays || days > MaxRangeDays {
		return &ValidationError{
			Field:  "rangeDays",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinRangeDays, MaxRangeDays, days),
		}
	}
	return nil
}

// CanonicalSymbol trims and upper-cases a ticker symbol. Duplicate
// symbols in a batch collapse to one fetch after canonicalization.
func CanonicalSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return "", &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if len(sym) > maxSymbolLen {
		return "", &ValidationError{Field: "symbol", Reason: fmt.Sprintf("too long (max %d)", maxSymbolLen)}
	}
	return sym, nil
}
