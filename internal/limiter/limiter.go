// Package limiter bounds concurrent and per-second access to the
// upstream provider.
package limiter

import (
	"context"
)

// Limiter admits at most n concurrently executing tasks. Excess tasks
// queue in arrival order and are dispatched as slots free up. One
// task's failure never blocks or cancels the others.
type Limiter struct {
	slots chan struct{}
}

// New returns a limiter admitting n concurrent tasks (at least 1).
func New(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Do runs task once a slot is available, or returns the context error
// if the caller gives up while queued.
func (l *Limiter) Do(ctx context.Context, task func() error) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slots }()
	return task()
}
