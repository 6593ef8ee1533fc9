package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// Limiter caps in-flight analyses. With a lock path, analyses are
// serialized across every process on the host and n is ignored.
type Limiter struct {
	slots    chan struct{}
	lock     *flock.Flock
	retryGap time.Duration
}

// NewLimiter allows n concurrent analyses. lockPath may be empty.
func NewLimiter(n int, lockPath string) *Limiter {
	if n < 1 || lockPath != "" {
		n = 1
	}
	l := &Limiter{slots: make(chan struct{}, n), retryGap: 250 * time.Millisecond}
	if lockPath != "" {
		l.lock = flock.New(lockPath)
	}
	return l
}

// Acquire blocks until a slot is free or ctx ends. The returned func
// releases the slot.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if l.lock == nil {
		return func() { <-l.slots }, nil
	}

	locked, err := l.lock.TryLockContext(ctx, l.retryGap)
	if err != nil || !locked {
		<-l.slots
		if err == nil {
			err = fmt.Errorf("lock %s not acquired", l.lock.Path())
		}
		return nil, fmt.Errorf("acquire analysis lock: %w", err)
	}
	return func() {
		_ = l.lock.Unlock()
		<-l.slots
	}, nil
}
