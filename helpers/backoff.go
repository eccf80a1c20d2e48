package helpers

import (
	"sync"
	"time"

	"github.com/temoto/atomic_clock"
)

// Backoff grows retry delay by K after each failure, between Min and Max.
// Zero value has no delay until first DelayAfter or Failure.
//
//	for {
//		pin.Delay(ctx, b.DelayBefore())
//		err := reconnect()
//		b.Update(err == nil)
//	}
type Backoff struct {
	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // rounding for logs, default 1ms

	mu       sync.Mutex
	next     time.Duration
	failures uint32
	last     atomic_clock.Clock
}

// DelayAfter records result of attempt that just finished and returns
// delay before the next one.
func (b *Backoff) DelayAfter(success bool) time.Duration {
	b.mu.Lock()
	if b.next == 0 {
		b.next = b.Min
	}
	b.mu.Unlock()
	b.Update(success)
	return b.DelayBefore()
}

// DelayBefore is remaining delay since last recorded attempt.
func (b *Backoff) DelayBefore() time.Duration {
	b.mu.Lock()
	next := b.next
	b.mu.Unlock()
	if next == 0 {
		return 0
	}
	delay := b.limit(next)
	since := atomic_clock.Since(&b.last)
	if since >= delay {
		return 0
	}
	return b.round(delay - since)
}

func (b *Backoff) Failure() {
	k := b.K
	if k < 1 {
		k = 2
	}
	b.mu.Lock()
	b.next = b.limit(time.Duration(float32(b.next) * k))
	b.failures++
	b.mu.Unlock()
	b.last.SetNow()
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	b.next = b.Min
	b.failures = 0
	b.mu.Unlock()
	b.last.SetNow()
}

func (b *Backoff) Update(success bool) {
	if success {
		b.Reset()
		return
	}
	b.Failure()
}

// Failures counts attempts since last success.
func (b *Backoff) Failures() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	switch {
	case d < b.Min:
		d = b.Min
	case b.Max != 0 && d > b.Max:
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	if b.Res == 0 {
		return d.Truncate(time.Millisecond)
	}
	return d.Truncate(b.Res)
}
