package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata/internal/market"
	"marketdata/internal/provider/finnhub"
)

func TestDo_TransientRetriedUntilExhausted(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		p := &Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return &finnhub.StatusError{Code: code}
		})
		require.Errorf(t, err, "code=%d", code)
		require.Equalf(t, 3, calls, "code=%d: want maxAttempts calls", code)
	}
}

func TestDo_TerminalFailsOnFirstAttempt(t *testing.T) {
	t.Parallel()

	p := &Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &finnhub.StatusError{Code: http.StatusNotFound}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	p := &Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &finnhub.StatusError{Code: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_BackoffDoubles(t *testing.T) {
	t.Parallel()

	base := 20 * time.Millisecond
	p := &Policy{MaxAttempts: 3, BaseDelay: base}

	var stamps []time.Time
	_ = p.Do(context.Background(), func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return &finnhub.StatusError{Code: http.StatusInternalServerError}
	})
	require.Len(t, stamps, 3)

	// Delay before attempt i+1 is base * 2^i.
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	require.GreaterOrEqual(t, first, base)
	require.GreaterOrEqual(t, second, 2*base)
	require.Less(t, first, 2*base)
}

func TestDo_RetryHintOverridesBackoff(t *testing.T) {
	t.Parallel()

	hint := 60 * time.Millisecond
	p := &Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	var stamps []time.Time
	err := p.Do(context.Background(), func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return &finnhub.StatusError{Code: http.StatusTooManyRequests, RetryAfter: hint}
	})
	require.ErrorIs(t, err, market.ErrThrottled)
	require.Len(t, stamps, 2)
	require.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), hint)
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	p := &Policy{MaxAttempts: 3, BaseDelay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return &finnhub.StatusError{Code: http.StatusInternalServerError}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestTransient(t *testing.T) {
	t.Parallel()

	transient := []error{
		&finnhub.StatusError{Code: http.StatusTooManyRequests},
		&finnhub.StatusError{Code: http.StatusInternalServerError},
		&finnhub.StatusError{Code: http.StatusBadGateway},
		&net.DNSError{Err: "no such host", Name: "finnhub.io"},
		&net.OpError{Op: "read", Err: errors.New("connection reset by peer")},
		context.DeadlineExceeded,
		fmt.Errorf("performing request: %w", context.DeadlineExceeded),
	}
	for _, err := range transient {
		require.Truef(t, Transient(err), "expected transient: %v", err)
	}

	terminal := []error{
		&finnhub.StatusError{Code: http.StatusNotFound},
		&finnhub.StatusError{Code: http.StatusBadRequest},
		finnhub.ErrNoData,
		errors.New("decoding quote response: unexpected EOF"),
		&market.ValidationError{Field: "symbol", Reason: "empty"},
	}
	for _, err := range terminal {
		require.Falsef(t, Transient(err), "expected terminal: %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.NoError(t, Classify(nil))

	err := Classify(&finnhub.StatusError{Code: http.StatusTooManyRequests})
	require.ErrorIs(t, err, market.ErrThrottled)

	err = Classify(&finnhub.StatusError{Code: http.StatusBadGateway})
	require.ErrorIs(t, err, market.ErrProvider)

	err = Classify(finnhub.ErrNoData)
	require.ErrorIs(t, err, market.ErrProvider)

	err = Classify(fmt.Errorf("performing request: %w", &net.DNSError{Err: "no such host"}))
	require.ErrorIs(t, err, market.ErrUnavailable)

	// Validation errors and caller cancellation pass through unchanged.
	verr := &market.ValidationError{Field: "interval", Reason: "unknown"}
	require.True(t, market.IsValidation(Classify(verr)))
	require.ErrorIs(t, Classify(context.Canceled), context.Canceled)
}
