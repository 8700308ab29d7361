package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-timer/clock"
	"github.com/onnwee/chat-timer/telemetry"
)

// Supervisor errors.
var (
	ErrClosed           = errors.New("chat supervisor closed")
	ErrAlreadyConnected = errors.New("already connected or connecting")
	ErrRetriesExhausted = errors.New("connect attempts exhausted")
	ErrNotConnected     = errors.New("not connected")
)

// State is the chat connection state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

const defaultOnlineMessage = "Timer bot is online! Type !<minutes>min to start a timer, e.g. !10min or !15min2 for updates every 2 minutes."

// SupervisorOptions tunes connection handling.
type SupervisorOptions struct {
	StartupDelay  time.Duration
	RetryDelay    time.Duration
	SettleDelay   time.Duration
	MaxAttempts   int
	// RecoveryDelay, when positive, starts a fresh attempt budget this long
	// after attempts run out. Zero leaves the supervisor down until restart.
	RecoveryDelay time.Duration
	OnlineMessage string
}

// DefaultSupervisorOptions waits 2s before the first attempt, retries every 5s
// and gives up after 3 consecutive failures.
func DefaultSupervisorOptions() SupervisorOptions {
	return SupervisorOptions{
		StartupDelay:  2 * time.Second,
		RetryDelay:    5 * time.Second,
		SettleDelay:   time.Second,
		MaxAttempts:   3,
		OnlineMessage: defaultOnlineMessage,
	}
}

// Supervisor keeps one chat session alive with bounded retries and is the
// outbound sink for timer notifications.
type Supervisor struct {
	transport Transport
	clk       clock.Clock
	channel   string
	opts      SupervisorOptions
	onMessage func(Message)

	mu          sync.Mutex
	state       State
	attempts    int
	gen         uint64 // bumped per attempt; events from older sessions are ignored
	closed      bool
	startedAt   time.Time
	connectedAt time.Time
	pending     clock.StopFunc
}

// NewSupervisor builds a supervisor for channel. onMessage receives every inbound
// line from the current session.
func NewSupervisor(t Transport, clk clock.Clock, channel string, opts SupervisorOptions, onMessage func(Message)) *Supervisor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.OnlineMessage == "" {
		opts.OnlineMessage = defaultOnlineMessage
	}
	return &Supervisor{
		transport: t,
		clk:       clk,
		channel:   channel,
		opts:      opts,
		onMessage: onMessage,
		startedAt: clk.Now(),
	}
}

// Start schedules the first connect attempt after the startup delay.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.startedAt = s.clk.Now()
	s.scheduleLocked(s.opts.StartupDelay, s.retry)
	slog.Info("chat: connect scheduled", slog.String("component", "chat"), slog.Duration("delay", s.opts.StartupDelay))
}

// Connect starts a session in the background. It refuses while a session is
// active, after Close, and once MaxAttempts consecutive attempts have failed.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.state != StateDisconnected:
		s.mu.Unlock()
		return ErrAlreadyConnected
	case s.attempts >= s.opts.MaxAttempts:
		s.mu.Unlock()
		return ErrRetriesExhausted
	}
	s.attempts++
	s.state = StateConnecting
	s.gen++
	gen, attempt := s.gen, s.attempts
	s.mu.Unlock()

	telemetry.Inc(telemetry.ConnectAttempts)
	slog.Info("chat: connecting",
		slog.String("component", "chat"),
		slog.String("channel", s.channel),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", s.opts.MaxAttempts))
	go s.run(gen)
	return nil
}

func (s *Supervisor) run(gen uint64) {
	err := s.transport.Connect(session{s: s, gen: gen})
	s.ended(gen, err)
}

// session routes transport callbacks tagged with the attempt that produced them.
type session struct {
	s   *Supervisor
	gen uint64
}

func (h session) Connected() { h.s.connected(h.gen) }

func (h session) Message(m Message) {
	if h.s.current(h.gen) && h.s.onMessage != nil {
		h.s.onMessage(m)
	}
}

func (s *Supervisor) connected(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	if s.state == StateConnected {
		s.mu.Unlock()
		slog.Debug("chat: duplicate connected event ignored", slog.String("component", "chat"))
		return
	}
	s.state = StateConnected
	s.attempts = 0
	s.connectedAt = s.clk.Now()
	s.mu.Unlock()

	telemetry.SetConnected(true)
	slog.Info("chat: connected", slog.String("component", "chat"), slog.String("channel", s.channel))
	s.clk.AfterFunc(s.opts.SettleDelay, func() {
		if s.liveSession(gen) {
			s.Say(s.channel, s.opts.OnlineMessage)
		}
	})
}

func (s *Supervisor) ended(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	closed := s.closed
	attempts := s.attempts
	switch {
	case closed:
	case wasConnected:
		s.scheduleLocked(s.opts.RetryDelay, s.reconnect)
	case attempts < s.opts.MaxAttempts:
		s.scheduleLocked(s.opts.RetryDelay, s.retry)
	case s.opts.RecoveryDelay > 0:
		s.scheduleLocked(s.opts.RecoveryDelay, s.reconnect)
	}
	s.mu.Unlock()

	telemetry.SetConnected(false)
	if closed {
		slog.Info("chat: session closed", slog.String("component", "chat"))
		return
	}
	if wasConnected {
		telemetry.Inc(telemetry.Disconnects)
		slog.Warn("chat: disconnected",
			slog.String("component", "chat"),
			slog.Any("err", err),
			slog.Duration("reconnect_in", s.opts.RetryDelay))
		return
	}
	if attempts < s.opts.MaxAttempts {
		slog.Warn("chat: connect failed",
			slog.String("component", "chat"),
			slog.Any("err", err),
			slog.Int("attempt", attempts),
			slog.Duration("retry_in", s.opts.RetryDelay))
		return
	}
	if s.opts.RecoveryDelay > 0 {
		slog.Error("chat: connect attempts exhausted, backing off",
			slog.String("component", "chat"),
			slog.Any("err", err),
			slog.Int("attempts", attempts),
			slog.Duration("recover_in", s.opts.RecoveryDelay))
		return
	}
	slog.Error("chat: connect attempts exhausted",
		slog.String("component", "chat"),
		slog.Any("err", err),
		slog.Int("attempts", attempts))
}

// retry is the scheduled follow-up to a failed attempt.
func (s *Supervisor) retry() {
	if err := s.Connect(); err != nil && !errors.Is(err, ErrAlreadyConnected) {
		slog.Debug("chat: retry skipped", slog.String("component", "chat"), slog.Any("err", err))
	}
}

// reconnect follows a dropped session or the recovery back-off and starts a
// fresh attempt budget.
func (s *Supervisor) reconnect() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
	s.retry()
}

// scheduleLocked replaces any pending follow-up. Caller holds s.mu.
func (s *Supervisor) scheduleLocked(d time.Duration, f func()) {
	if s.pending != nil {
		s.pending()
	}
	s.pending = s.clk.AfterFunc(d, f)
}

func (s *Supervisor) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && !s.closed
}

func (s *Supervisor) liveSession(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && !s.closed && s.state == StateConnected
}

// Send writes text to channel. It fails with ErrNotConnected outside a live session.
func (s *Supervisor) Send(channel, text string) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	if err := s.transport.Say(channel, text); err != nil {
		return fmt.Errorf("say in %s: %w", channel, err)
	}
	return nil
}

// Say sends text and never blocks on failure: drops are logged and counted.
func (s *Supervisor) Say(channel, text string) {
	if err := s.Send(channel, text); err != nil {
		telemetry.Inc(telemetry.MessagesDropped)
		slog.Warn("chat: message dropped", slog.String("component", "chat"), slog.String("channel", channel), slog.Any("err", err))
		return
	}
	telemetry.Inc(telemetry.MessagesSent)
}

// Close stops reconnecting and disconnects the transport.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateDisconnected
	if s.pending != nil {
		s.pending()
		s.pending = nil
	}
	s.mu.Unlock()
	telemetry.SetConnected(false)
	s.transport.Disconnect()
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether a session is live.
func (s *Supervisor) Connected() bool {
	return s.State() == StateConnected
}

// Attempts returns the consecutive attempt counter.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// StartedAt is when the supervisor was started.
func (s *Supervisor) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// ConnectedAt is when the current or last session came up.
func (s *Supervisor) ConnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedAt
}
