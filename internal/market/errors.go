package market

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers of the fetch layer. Transport-level
// failures never escape directly; the retry policy translates them into
// one of these before they reach the API layer.
var (
	// ErrThrottled reports an exhausted upstream rate limit.
	ErrThrottled = errors.New("provider throttled")
	// ErrProvider reports an upstream that is erroring, returned a
	// terminal no-data status, or produced an unreadable response.
	ErrProvider = errors.New("provider error")
	// ErrUnavailable reports a transport-level failure that survived
	// all retries.
	ErrUnavailable = errors.New("market data unavailable")
)

// ValidationError rejects bad input before any network activity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
