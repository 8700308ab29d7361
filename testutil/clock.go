package testutil

import (
	"sync"
	"time"

	"github.com/onnwee/chat-timer/clock"
)

// FakeClock is a manually advanced clock.Clock. Scheduled callbacks run
// synchronously inside Advance, in due-time order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*fakeTask
}

type fakeTask struct {
	seq    int
	at     time.Time
	period time.Duration
	fn     func()
}

var _ clock.Clock = (*FakeClock)(nil)

// NewFakeClock starts at start, or at a fixed reference instant when start is zero.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)
	}
	return &FakeClock{now: start}
}

// Now returns the simulated time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f once.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.StopFunc {
	return c.add(d, 0, f)
}

// Every schedules f repeatedly.
func (c *FakeClock) Every(d time.Duration, f func()) clock.StopFunc {
	return c.add(d, d, f)
}

func (c *FakeClock) add(d, period time.Duration, f func()) clock.StopFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	task := &fakeTask{seq: c.seq, at: c.now.Add(d), period: period, fn: f}
	c.pending = append(c.pending, task)
	return func() { c.cancel(task) }
}

func (c *FakeClock) cancel(task *fakeTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p == task {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// Advance moves time forward by d, firing every callback that falls due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTask
		for _, p := range c.pending {
			if p.at.After(target) {
				continue
			}
			if next == nil || p.at.Before(next.at) || (p.at.Equal(next.at) && p.seq < next.seq) {
				next = p
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			for i, p := range c.pending {
				if p == next {
					c.pending = append(c.pending[:i], c.pending[i+1:]...)
					break
				}
			}
		}
		fn := next.fn
		c.mu.Unlock()
		fn()
	}
}

// Pending returns the number of scheduled callbacks.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
