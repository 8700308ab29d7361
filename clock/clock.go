// Package clock abstracts wall time and delayed/periodic scheduling so timer and
// connection logic can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// StopFunc cancels a scheduled activity. Calling it more than once is safe.
type StopFunc func()

// Clock provides the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once after d on its own goroutine.
	AfterFunc(d time.Duration, f func()) StopFunc
	// Every runs f every d until stopped. The first run happens after d.
	Every(d time.Duration, f func()) StopFunc
}

// Real is the production Clock backed by the time package.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) StopFunc {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Every starts a ticker goroutine. Stop does not wait for an in-flight call.
func (Real) Every(d time.Duration, f func()) StopFunc {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// stop may race with a tick that already fired
				select {
				case <-done:
					return
				default:
				}
				f()
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}
