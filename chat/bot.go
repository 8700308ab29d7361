package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/chat-timer/clock"
	"github.com/onnwee/chat-timer/db"
	"github.com/onnwee/chat-timer/permission"
	"github.com/onnwee/chat-timer/telemetry"
	"github.com/onnwee/chat-timer/timer"
)

// EventRecorder persists timer lifecycle events. Record must not block.
type EventRecorder interface {
	Record(db.TimerEvent) bool
}

// Options configures a Bot.
type Options struct {
	BotName       string
	Channel       string
	Permissions   permission.Config
	Timer         timer.Options
	Supervisor    SupervisorOptions
	MaxMinutes    int
	DedupCapacity int
	// Journal is optional.
	Journal EventRecorder
}

// Bot owns the timer registry, the connection supervisor and the dispatcher
// for one channel.
type Bot struct {
	opts Options
	clk  clock.Clock

	Gate       *permission.Gate
	Registry   *timer.Registry
	Supervisor *Supervisor
	Dispatcher *Dispatcher
}

// Status is the snapshot served by the status endpoints.
type Status struct {
	Bot             string `json:"bot"`
	Channel         string `json:"channel"`
	Permissions     string `json:"permissions"`
	State           string `json:"state"`
	Connected       bool   `json:"connected"`
	ConnectAttempts int    `json:"connect_attempts"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	ActiveTimers    int    `json:"active_timers"`
}

// NewBot wires the components over transport.
func NewBot(opts Options, clk clock.Clock, transport Transport) *Bot {
	b := &Bot{opts: opts, clk: clk}
	b.Gate = permission.NewGate(opts.Permissions)
	b.Supervisor = NewSupervisor(transport, clk, opts.Channel, opts.Supervisor, b.handleMessage)
	b.Registry = timer.NewRegistry(clk, b.Supervisor, opts.Timer, timer.ObserverFunc(b.observe))
	b.Dispatcher = NewDispatcher(opts.BotName, opts.MaxMinutes, b.Gate, b.Registry, NewDedupWindow(opts.DedupCapacity), b.Supervisor, b.Supervisor.Connected)
	return b
}

func (b *Bot) handleMessage(m Message) {
	b.Dispatcher.Handle(context.Background(), m)
}

// observe feeds timer lifecycle events to metrics and the journal.
func (b *Bot) observe(ev timer.Event) {
	switch ev.Kind {
	case timer.EventStarted:
		telemetry.Inc(telemetry.TimersStarted)
	case timer.EventCompleted:
		telemetry.Inc(telemetry.TimersCompleted)
	case timer.EventStopped, timer.EventReplaced:
		telemetry.Inc(telemetry.TimersStopped)
	}
	telemetry.SetActiveTimers(b.Registry.Len())
	if b.opts.Journal == nil {
		return
	}
	rec := db.TimerEvent{
		Kind:             string(ev.Kind),
		TimerID:          ev.TimerID,
		Owner:            ev.Owner,
		Channel:          ev.Channel,
		RemainingSeconds: int64(ev.Remaining / time.Second),
		At:               ev.At,
	}
	if !b.opts.Journal.Record(rec) {
		slog.Debug("timer event not journaled", slog.String("component", "chat"), slog.String("timer_id", ev.TimerID))
	}
}

// Start schedules the first chat connection.
func (b *Bot) Start() {
	slog.Info("bot starting",
		slog.String("component", "chat"),
		slog.String("bot", b.opts.BotName),
		slog.String("channel", b.opts.Channel),
		slog.String("permissions", b.Gate.Summary()))
	b.Supervisor.Start()
}

// Shutdown retires every timer and closes the chat connection.
func (b *Bot) Shutdown() {
	n := b.Registry.ShutdownAll()
	b.Supervisor.Close()
	slog.Info("bot stopped", slog.String("component", "chat"), slog.Int("timers_cancelled", n))
}

// Status reports connection state and timer count.
func (b *Bot) Status() Status {
	state := b.Supervisor.State()
	return Status{
		Bot:             b.opts.BotName,
		Channel:         b.opts.Channel,
		Permissions:     b.Gate.Summary(),
		State:           state.String(),
		Connected:       state == StateConnected,
		ConnectAttempts: b.Supervisor.Attempts(),
		UptimeSeconds:   int64(b.clk.Now().Sub(b.Supervisor.StartedAt()) / time.Second),
		ActiveTimers:    b.Registry.Len(),
	}
}

// Timers lists live timers ordered by owner.
func (b *Bot) Timers() []timer.Status {
	return b.Registry.Snapshot()
}

// Ready reports whether chat is connected.
func (b *Bot) Ready() bool {
	return b.Supervisor.Connected()
}
