package analytics

import (
	"context"
	"sync"
	"time"
)

// RateLimiter grants outbound requests so that at most limit requests are
// issued in any trailing window and consecutive grants are spaced by at
// least minInterval. Each caller reserves the next free slot under the lock
// and then waits it out unlocked, so arrival order decides grant order while
// stats reads never queue behind a blocked waiter.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	minInterval time.Duration

	// grants holds the slot times of issued and reserved requests, ascending
	grants []time.Time
	last   time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter over a trailing 60-second window.
func NewRateLimiter(requestsPerMinute int, minInterval time.Duration) *RateLimiter {
	return newRateLimiter(requestsPerMinute, time.Minute, minInterval)
}

func newRateLimiter(limit int, window, minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:       limit,
		window:      window,
		minInterval: minInterval,
		grants:      make([]time.Time, 0, limit),
		now:         time.Now,
	}
}

// Acquire blocks until a request may be issued or ctx is done. A cancelled
// waiter withdraws its reservation so the slot is not wasted.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	l.prune(now)
	at := l.nextSlot(now)
	l.grants = append(l.grants, at)
	l.last = at
	l.mu.Unlock()

	wait := at.Sub(now)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		l.release(at)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextSlot computes the earliest time a new grant may be issued, given the
// reservations already made.
func (l *RateLimiter) nextSlot(now time.Time) time.Time {
	at := now
	if !l.last.IsZero() {
		if t := l.last.Add(l.minInterval); t.After(at) {
			at = t
		}
	}
	if len(l.grants) >= l.limit {
		// The grant limit positions back must age out of the window first.
		if t := l.grants[len(l.grants)-l.limit].Add(l.window); t.After(at) {
			at = t
		}
	}
	return at
}

// release withdraws the reservation of a cancelled waiter.
func (l *RateLimiter) release(at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.grants) - 1; i >= 0; i-- {
		if l.grants[i].Equal(at) {
			l.grants = append(l.grants[:i], l.grants[i+1:]...)
			break
		}
	}
	if l.last.Equal(at) {
		l.last = time.Time{}
		if len(l.grants) > 0 {
			l.last = l.grants[len(l.grants)-1]
		}
	}
}

// prune drops grants that have aged out of the trailing window.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.grants) && !l.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}

// RecentCount returns the number of requests granted within the trailing
// window, for observability. Pending reservations are not counted.
func (l *RateLimiter) RecentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	n := 0
	for _, g := range l.grants {
		if g.After(now) {
			break
		}
		n++
	}
	return n
}
