// Package retry wraps single upstream calls with failure
// classification and exponential backoff. Transient faults (rate
// limits, server errors, transport failures) are retried; everything
// else fails immediately. Exhausted or terminal failures are
// translated into the small error taxonomy in the market package, so
// callers above this layer never see transport-specific error shapes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"marketdata/internal/market"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	maxDelay           = 60 * time.Second
)

// statusCoder is implemented by provider errors carrying an HTTP
// status code.
type statusCoder interface {
	HTTPStatus() int
}

// retryHinter is implemented by provider errors carrying a
// server-supplied retry hint.
type retryHinter interface {
	RetryAfterHint() time.Duration
}

// Policy retries transient failures with exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the backoff before the first retry; attempt i waits
	// BaseDelay * 2^i unless the error carries a retry hint.
	BaseDelay time.Duration
	// Logger records retry attempts. Optional.
	Logger *zerolog.Logger
}

// Do runs op until it succeeds, fails terminally, or attempts run out.
// The returned error is already classified.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt-1, err)
			if p.Logger != nil {
				p.Logger.Warn().Err(err).Int("attempt", attempt).
					Dur("backoff", delay).Msg("retrying upstream call")
			}
			if werr := sleep(ctx, delay); werr != nil {
				return Classify(werr)
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if !Transient(err) {
			break
		}
	}
	return Classify(err)
}

// backoff computes the delay after failed attempt i, honoring any
// server-supplied retry hint over the exponential schedule.
func (p *Policy) backoff(i int, err error) time.Duration {
	var hinter retryHinter
	if errors.As(err, &hinter) {
		if hint := hinter.RetryAfterHint(); hint > 0 {
			return hint
		}
	}

	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	if i > 30 {
		return maxDelay
	}
	delay := base << uint(i)
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Transient reports whether err is expected to succeed on retry:
// HTTP 429, HTTP >= 500, or a transport-level fault.
func Transient(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return transportFault(err)
}

// transportFault reports network-level failures: timeouts, connection
// resets and aborts, DNS failures and the like.
func transportFault(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}

// Classify translates a raw upstream failure into the caller-facing
// taxonomy. Validation errors and caller cancellation pass through
// untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if market.IsValidation(err) || errors.Is(err, context.Canceled) {
		return err
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		if sc.HTTPStatus() == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", market.ErrThrottled, err)
		}
		return fmt.Errorf("%w: %v", market.ErrProvider, err)
	}
	if transportFault(err) {
		return fmt.Errorf("%w: %v", market.ErrUnavailable, err)
	}
	// No-data statuses, malformed responses and anything else the
	// provider handed back.
	return fmt.Errorf("%w: %v", market.ErrProvider, err)
}
