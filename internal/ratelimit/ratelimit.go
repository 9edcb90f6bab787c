package ratelimit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Limiter enforces a minimum spacing between outbound requests. It is not a
// concurrency primitive: requests are issued sequentially, one job at a time,
// and the limiter only tracks when the previous request started.
type Limiter struct {
	delay time.Duration
	last  time.Time

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Limiter with the given minimum inter-request delay.
// A non-positive delay disables waiting entirely.
func New(delay time.Duration) *Limiter {
	return &Limiter{
		delay: delay,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Wait blocks until at least the configured delay has elapsed since the
// previous call to Wait returned. The last-request marker is stamped after
// the wait, so spacing is measured between successive call starts.
func (l *Limiter) Wait() {
	if l.delay > 0 && !l.last.IsZero() {
		elapsed := l.now().Sub(l.last)
		if elapsed < l.delay {
			wait := l.delay - elapsed
			log.Info().Msg(fmt.Sprintf("rate limiting: waiting %.1fs before next request", wait.Seconds()))
			l.sleep(wait)
		}
	}
	l.last = l.now()
}
