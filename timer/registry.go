package timer

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/chat-timer/clock"
)

// EventKind names a timer lifecycle transition.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventReplaced  EventKind = "replaced"
	EventUpdate    EventKind = "update"
	EventPaused    EventKind = "paused"
	EventResumed   EventKind = "resumed"
	EventCompleted EventKind = "completed"
	EventStopped   EventKind = "stopped"
	EventShutdown  EventKind = "shutdown"
)

// Event is delivered to observers after the transition has happened.
type Event struct {
	Kind      EventKind
	TimerID   string
	Owner     string
	Channel   string
	Remaining time.Duration
	At        time.Time
}

// Observer receives lifecycle events. Calls happen on the goroutine that caused
// the transition and must return quickly.
type Observer interface {
	TimerEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// TimerEvent calls f(ev).
func (f ObserverFunc) TimerEvent(ev Event) { f(ev) }

// Options tunes tick scheduling.
type Options struct {
	// TickInterval is how often a running timer is evaluated.
	TickInterval time.Duration
	// UpdateBuffer is subtracted from the update interval to absorb tick jitter.
	UpdateBuffer time.Duration
}

// DefaultOptions evaluates every second with a half second buffer.
func DefaultOptions() Options {
	return Options{TickInterval: time.Second, UpdateBuffer: 500 * time.Millisecond}
}

// Registry owns all live timers, indexed by owner. At most one timer exists per owner.
type Registry struct {
	clk       clock.Clock
	notify    Notifier
	opts      Options
	observers []Observer

	mu      sync.Mutex
	byOwner map[string]*Timer
}

// NewRegistry builds an empty registry. A zero TickInterval selects the defaults.
func NewRegistry(clk clock.Clock, notify Notifier, opts Options, observers ...Observer) *Registry {
	if opts.TickInterval <= 0 {
		opts = DefaultOptions()
	}
	return &Registry{
		clk:       clk,
		notify:    notify,
		opts:      opts,
		observers: observers,
		byOwner:   make(map[string]*Timer),
	}
}

func (r *Registry) emit(ev Event) {
	for _, o := range r.observers {
		o.TimerEvent(ev)
	}
}

// remove drops t from the index unless a replacement already took its slot.
func (r *Registry) remove(t *Timer) {
	r.mu.Lock()
	if cur, ok := r.byOwner[t.Owner]; ok && cur == t {
		delete(r.byOwner, t.Owner)
	}
	r.mu.Unlock()
}

func (r *Registry) get(owner string) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byOwner[owner]
}

// Start replaces any timer owned by owner with a new one and confirms in chat.
// minutes and interval must be at least 1.
func (r *Registry) Start(owner string, minutes, interval int, channel string) *Timer {
	now := r.clk.Now()
	t := newTimer(owner, minutes, interval, channel, now, r)

	r.mu.Lock()
	prev := r.byOwner[owner]
	r.byOwner[owner] = t
	r.mu.Unlock()

	if prev != nil && prev.Cleanup() {
		slog.Debug("timer replaced", slog.String("component", "timer"), slog.String("owner", owner), slog.String("timer_id", prev.ID))
		r.emit(Event{Kind: EventReplaced, TimerID: prev.ID, Owner: owner, Channel: prev.Channel, At: now})
	}
	t.start()
	slog.Info("timer started",
		slog.String("component", "timer"),
		slog.String("owner", owner),
		slog.String("timer_id", t.ID),
		slog.Int("minutes", minutes),
		slog.Int("interval_minutes", interval))
	r.notify.Say(channel, msgStarted(owner, minutes, interval))
	r.emit(Event{Kind: EventStarted, TimerID: t.ID, Owner: owner, Channel: channel, Remaining: t.total(), At: now})
	return t
}

// Pause pauses owner's running timer, replying on channel either way.
func (r *Registry) Pause(owner, channel string) bool {
	now := r.clk.Now()
	t := r.get(owner)
	if t == nil || !t.Pause(now) {
		r.notify.Say(channel, msgNothingToPause(owner))
		return false
	}
	st := t.Status(now)
	r.notify.Say(t.Channel, msgPaused(owner, st.Remaining))
	r.emit(Event{Kind: EventPaused, TimerID: t.ID, Owner: owner, Channel: t.Channel, Remaining: st.Remaining, At: now})
	return true
}

// Resume resumes owner's paused timer, replying on channel either way.
func (r *Registry) Resume(owner, channel string) bool {
	now := r.clk.Now()
	t := r.get(owner)
	if t == nil || !t.Resume(now) {
		r.notify.Say(channel, msgNothingToResume(owner))
		return false
	}
	st := t.Status(now)
	r.notify.Say(t.Channel, msgResumed(owner, st.Remaining))
	r.emit(Event{Kind: EventResumed, TimerID: t.ID, Owner: owner, Channel: t.Channel, Remaining: st.Remaining, At: now})
	return true
}

// Stop removes owner's timer and returns how many were removed.
func (r *Registry) Stop(owner, channel string) int {
	now := r.clk.Now()
	r.mu.Lock()
	t := r.byOwner[owner]
	delete(r.byOwner, owner)
	r.mu.Unlock()

	n := 0
	if t != nil && t.Cleanup() {
		n = 1
		r.emit(Event{Kind: EventStopped, TimerID: t.ID, Owner: owner, Channel: t.Channel, At: now})
	}
	if n == 0 {
		r.notify.Say(channel, msgNothingToStop(owner))
		return 0
	}
	r.notify.Say(channel, msgStopped(owner, n))
	return n
}

// StatusFor reports owner's timers and posts them to channel.
func (r *Registry) StatusFor(owner, channel string) []Status {
	t := r.get(owner)
	if t == nil {
		r.notify.Say(channel, msgNoTimers(owner))
		return nil
	}
	st := t.Status(r.clk.Now())
	r.notify.Say(channel, msgStatus(owner, st))
	return []Status{st}
}

// ShutdownAll retires every timer without chat output.
func (r *Registry) ShutdownAll() int {
	now := r.clk.Now()
	r.mu.Lock()
	all := make([]*Timer, 0, len(r.byOwner))
	for _, t := range r.byOwner {
		all = append(all, t)
	}
	clear(r.byOwner)
	r.mu.Unlock()

	n := 0
	for _, t := range all {
		if t.Cleanup() {
			n++
			r.emit(Event{Kind: EventShutdown, TimerID: t.ID, Owner: t.Owner, Channel: t.Channel, At: now})
		}
	}
	if n > 0 {
		slog.Info("timers shut down", slog.String("component", "timer"), slog.Int("count", n))
	}
	return n
}

// Len returns the number of live timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOwner)
}

// Snapshot returns the status of every live timer ordered by owner.
func (r *Registry) Snapshot() []Status {
	now := r.clk.Now()
	r.mu.Lock()
	all := make([]*Timer, 0, len(r.byOwner))
	for _, t := range r.byOwner {
		all = append(all, t)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(all))
	for _, t := range all {
		out = append(out, t.Status(now))
	}
	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.Owner, b.Owner) })
	return out
}
