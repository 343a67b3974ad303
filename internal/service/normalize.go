package service

import (
	"math"
	"sort"
	"time"

	"marketdata/internal/market"
	"marketdata/internal/provider/finnhub"
)

// normalizeQuote converts a raw provider quote into the normalized
// shape. Numeric fields carry over only when finite; anything missing
// or non-finite becomes nil, never zero.
func normalizeQuote(symbol, marketName, source, currency string, raw finnhub.Quote, fetchedAt time.Time) market.Quote {
	q := market.Quote{
		Symbol:        symbol,
		Market:        marketName,
		Source:        source,
		Currency:      currency,
		FetchedAt:     fetchedAt,
		Price:         finiteOrNil(raw.Current),
		Open:          finiteOrNil(raw.Open),
		PreviousClose: finiteOrNil(raw.PreviousClose),
		DayHigh:       finiteOrNil(raw.High),
		DayLow:        finiteOrNil(raw.Low),
		Change:        finiteOrNil(raw.Change),
		ChangePercent: finiteOrNil(raw.PercentChange),
	}
	if raw.Timestamp != nil && *raw.Timestamp > 0 {
		ts := time.Unix(*raw.Timestamp, 0).UTC()
		q.Timestamp = &ts
	}
	return q
}

// normalizeCandles zips the provider's parallel arrays into candles.
// Rows with a missing or non-finite close are dropped; missing open,
// high or low default to the row's close; missing volume stays nil.
// The result is sorted ascending by time and deduplicated by exact
// time, keeping the first occurrence. Idempotent on already-normalized
// input.
func normalizeCandles(raw finnhub.Candles) []market.Candle {
	n := len(raw.Times)
	if len(raw.Close) < n {
		n = len(raw.Close)
	}

	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		closeV := finiteAt(raw.Close, i)
		if closeV == nil {
			continue
		}
		c := market.Candle{
			Time:   time.Unix(raw.Times[i], 0).UTC(),
			Open:   valueOr(finiteAt(raw.Open, i), *closeV),
			High:   valueOr(finiteAt(raw.High, i), *closeV),
			Low:    valueOr(finiteAt(raw.Low, i), *closeV),
			Close:  *closeV,
			Volume: finiteAt(raw.Volume, i),
		}
		out = append(out, c)
	}

	// Stable sort so the first occurrence wins among duplicate times.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	deduped := out[:0]
	var last time.Time
	for i, c := range out {
		if i > 0 && c.Time.Equal(last) {
			continue
		}
		deduped = append(deduped, c)
		last = c.Time
	}
	return deduped
}

// finiteOrNil copies v when it is a finite number, else nil.
func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

// finiteAt reads index i from a parallel array, treating out-of-range
// and non-finite entries as missing.
func finiteAt(vs []*float64, i int) *float64 {
	if i >= len(vs) {
		return nil
	}
	return finiteOrNil(vs[i])
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
