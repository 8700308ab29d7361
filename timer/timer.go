// Package timer implements per-user countdown timers and the registry that owns them.
//
// A Timer never schedules itself: the registry hands it a clock.Clock and the
// Timer keeps only the StopFunc of its periodic tick. Every exit path
// (completion, stop, replacement, shutdown) goes through the same idempotent
// retirement so the tick is cancelled exactly once.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/onnwee/chat-timer/clock"
)

// State is the lifecycle position of a Timer.
type State int

const (
	Running State = iota
	Paused
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Notifier delivers chat text. Implementations must not block for long and
// handle their own failures.
type Notifier interface {
	Say(channel, text string)
}

// Status is a read-only view of a Timer.
type Status struct {
	ID               string        `json:"id"`
	Owner            string        `json:"owner"`
	Channel          string        `json:"channel"`
	Minutes          int           `json:"minutes"`
	IntervalMinutes  int           `json:"interval_minutes"`
	Remaining        time.Duration `json:"-"`
	RemainingMinutes int           `json:"remaining_minutes"`
	Paused           bool          `json:"paused"`
	StartedAt        time.Time     `json:"started_at"`
}

// Timer is one countdown. Fields below mu are guarded by it.
type Timer struct {
	ID              string
	Owner           string
	Channel         string
	Minutes         int
	IntervalMinutes int
	StartedAt       time.Time
	EndsAt          time.Time

	clk    clock.Clock
	notify Notifier
	opts   Options
	onDone func(*Timer)
	emit   func(Event)

	mu          sync.Mutex
	state       State
	lastUpdate  time.Time
	pausedTotal time.Duration
	pauseStart  time.Time
	stop        clock.StopFunc
}

func newTimer(owner string, minutes, interval int, channel string, now time.Time, r *Registry) *Timer {
	return &Timer{
		ID:              fmt.Sprintf("%s-%d", owner, now.UnixMilli()),
		Owner:           owner,
		Channel:         channel,
		Minutes:         minutes,
		IntervalMinutes: interval,
		StartedAt:       now,
		EndsAt:          now.Add(time.Duration(minutes) * time.Minute),
		clk:             r.clk,
		notify:          r.notify,
		opts:            r.opts,
		onDone:          r.remove,
		emit:            r.emit,
		state:           Running,
		lastUpdate:      now,
	}
}

func (t *Timer) total() time.Duration    { return time.Duration(t.Minutes) * time.Minute }
func (t *Timer) interval() time.Duration { return time.Duration(t.IntervalMinutes) * time.Minute }

// scheduleLocked starts a fresh periodic tick. Caller holds t.mu.
func (t *Timer) scheduleLocked() {
	t.stop = t.clk.Every(t.opts.TickInterval, func() { t.Tick(t.clk.Now()) })
}

func (t *Timer) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Running && t.stop == nil {
		t.scheduleLocked()
	}
}

// remainingLocked excludes all paused time, including an in-progress pause.
func (t *Timer) remainingLocked(now time.Time) time.Duration {
	elapsed := now.Sub(t.StartedAt) - t.pausedTotal
	if t.state == Paused {
		elapsed -= now.Sub(t.pauseStart)
	}
	return t.total() - elapsed
}

// Tick advances the countdown. It completes the timer when no time is left and
// otherwise posts a progress update once per interval.
func (t *Timer) Tick(now time.Time) {
	t.mu.Lock()
	if t.state != Running {
		t.mu.Unlock()
		return
	}
	remaining := t.remainingLocked(now)
	if remaining <= 0 {
		stop, _ := t.retireLocked()
		t.mu.Unlock()
		t.notify.Say(t.Channel, msgCompleted(t.Owner, t.Minutes))
		t.release(stop)
		t.emit(Event{Kind: EventCompleted, TimerID: t.ID, Owner: t.Owner, Channel: t.Channel, At: now})
		return
	}
	// the buffer absorbs tick jitter so an update is not pushed a whole tick late
	if now.Sub(t.lastUpdate) < t.interval()-t.opts.UpdateBuffer {
		t.mu.Unlock()
		return
	}
	t.lastUpdate = now
	t.mu.Unlock()
	t.notify.Say(t.Channel, msgUpdate(t.Owner, remaining))
	t.emit(Event{Kind: EventUpdate, TimerID: t.ID, Owner: t.Owner, Channel: t.Channel, Remaining: remaining, At: now})
}

// Pause freezes the countdown. It returns false when the timer is not running.
// A timer with no time left is completed instead of paused.
func (t *Timer) Pause(now time.Time) bool {
	t.mu.Lock()
	if t.state != Running {
		t.mu.Unlock()
		return false
	}
	if t.remainingLocked(now) <= 0 {
		t.mu.Unlock()
		t.Tick(now)
		return false
	}
	t.state = Paused
	t.pauseStart = now
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
	return true
}

// Resume continues a paused countdown on a fresh tick schedule. It returns false
// when the timer is not paused.
func (t *Timer) Resume(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Paused {
		return false
	}
	t.pausedTotal += now.Sub(t.pauseStart)
	t.pauseStart = time.Time{}
	t.state = Running
	t.lastUpdate = now
	t.scheduleLocked()
	return true
}

// Status reports the remaining time without mutating the timer.
func (t *Timer) Status(now time.Time) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.remainingLocked(now)
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		ID:               t.ID,
		Owner:            t.Owner,
		Channel:          t.Channel,
		Minutes:          t.Minutes,
		IntervalMinutes:  t.IntervalMinutes,
		Remaining:        remaining,
		RemainingMinutes: CeilMinutes(remaining),
		Paused:           t.state == Paused,
		StartedAt:        t.StartedAt,
	}
}

// State returns the current lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cleanup cancels the periodic tick and detaches the timer from its registry.
// Only the first call has an effect; it reports whether this call retired the timer.
func (t *Timer) Cleanup() bool {
	t.mu.Lock()
	stop, first := t.retireLocked()
	t.mu.Unlock()
	if first {
		t.release(stop)
	}
	return first
}

// retireLocked moves the timer to Completed and detaches its tick handle.
func (t *Timer) retireLocked() (clock.StopFunc, bool) {
	if t.state == Completed {
		return nil, false
	}
	t.state = Completed
	stop := t.stop
	t.stop = nil
	return stop, true
}

func (t *Timer) release(stop clock.StopFunc) {
	if stop != nil {
		stop()
	}
	if t.onDone != nil {
		t.onDone(t)
	}
}
