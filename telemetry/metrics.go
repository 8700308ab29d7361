// Package telemetry provides Prometheus metrics, OpenTelemetry tracing, and
// correlation-id aware logging helpers for the timer bot.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TimersStarted   prometheus.Counter
	TimersCompleted prometheus.Counter
	TimersStopped   prometheus.Counter
	CommandsTotal   *prometheus.CounterVec // labels: command, outcome
	MessagesDeduped prometheus.Counter
	MessagesSent    prometheus.Counter
	MessagesDropped prometheus.Counter
	ConnectAttempts prometheus.Counter
	Disconnects     prometheus.Counter
	JournalDropped  prometheus.Counter

	// Histograms (seconds)
	DispatchDuration prometheus.Observer

	// Gauges
	ActiveTimers   prometheus.Gauge
	ChatConnected  prometheus.Gauge // 1=connected,0=not
	JournalBacklog prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TimersStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_timers_started_total", Help: "Number of timers started"})
		TimersCompleted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_timers_completed_total", Help: "Number of timers that ran to completion"})
		TimersStopped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_timers_stopped_total", Help: "Number of timers stopped or replaced before completion"})
		CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_timer_commands_total", Help: "Chat commands handled by command and outcome"}, []string{"command", "outcome"})
		MessagesDeduped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_messages_deduplicated_total", Help: "Inbound chat messages dropped as duplicates"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_messages_sent_total", Help: "Outbound chat messages handed to the transport"})
		MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_messages_dropped_total", Help: "Outbound chat messages dropped while disconnected or on send failure"})
		ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_connect_attempts_total", Help: "Chat connect attempts"})
		Disconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_disconnects_total", Help: "Chat disconnect events"})
		JournalDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_timer_journal_dropped_total", Help: "Timer events dropped because the journal buffer was full"})
		DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_timer_dispatch_duration_seconds", Help: "Time spent handling one inbound chat message", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5}})
		ActiveTimers = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_timer_active_timers", Help: "Current number of live timers"})
		ChatConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_timer_chat_connected", Help: "Chat connection state connected=1 disconnected=0"})
		JournalBacklog = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_timer_journal_backlog", Help: "Timer events waiting to be written to the journal"})
	})
}

// SetConnected records the chat connection state.
func SetConnected(connected bool) {
	if ChatConnected == nil {
		return
	}
	if connected {
		ChatConnected.Set(1)
	} else {
		ChatConnected.Set(0)
	}
}

// SetActiveTimers records the live timer count.
func SetActiveTimers(n int) {
	if ActiveTimers != nil {
		ActiveTimers.Set(float64(n))
	}
}

// SetJournalBacklog records how many timer events await persistence.
func SetJournalBacklog(n int) {
	if JournalBacklog != nil {
		JournalBacklog.Set(float64(n))
	}
}

// CountCommand increments the command counter.
func CountCommand(command, outcome string) {
	if CommandsTotal != nil {
		CommandsTotal.WithLabelValues(command, outcome).Inc()
	}
}

// Inc increments c when it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}
