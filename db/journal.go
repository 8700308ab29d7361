package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/chat-timer/telemetry"
)

// TimerEvent is one row of the timer_events table.
type TimerEvent struct {
	Kind             string    `json:"kind"`
	TimerID          string    `json:"timer_id"`
	Owner            string    `json:"owner"`
	Channel          string    `json:"channel"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	At               time.Time `json:"at"`
}

// InsertTimerEvent appends ev.
func (s *Store) InsertTimerEvent(ctx context.Context, ev TimerEvent) error {
	q := s.rebind(`INSERT INTO timer_events(timer_id, kind, owner, channel, remaining_seconds, at_unix_ms) VALUES(?,?,?,?,?,?)`)
	if _, err := s.DB.ExecContext(ctx, q, ev.TimerID, ev.Kind, ev.Owner, ev.Channel, ev.RemainingSeconds, ev.At.UnixMilli()); err != nil {
		return fmt.Errorf("insert timer event: %w", err)
	}
	return nil
}

// RecentTimerEvents returns up to limit events, newest first.
func (s *Store) RecentTimerEvents(ctx context.Context, limit int) ([]TimerEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, s.rebind(`SELECT timer_id, kind, owner, channel, remaining_seconds, at_unix_ms FROM timer_events ORDER BY at_unix_ms DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query timer events: %w", err)
	}
	defer rows.Close()
	var out []TimerEvent
	for rows.Next() {
		var ev TimerEvent
		var at int64
		if err := rows.Scan(&ev.TimerID, &ev.Kind, &ev.Owner, &ev.Channel, &ev.RemainingSeconds, &at); err != nil {
			return nil, fmt.Errorf("scan timer event: %w", err)
		}
		ev.At = time.UnixMilli(at).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Journal writes timer events in the background so chat handling never waits
// on the database. When the buffer is full new events are dropped.
type Journal struct {
	store *Store
	ch    chan TimerEvent
}

// NewJournal returns a journal with room for buffer pending events (256 when <= 0).
func NewJournal(store *Store, buffer int) *Journal {
	if buffer <= 0 {
		buffer = 256
	}
	return &Journal{store: store, ch: make(chan TimerEvent, buffer)}
}

// Record queues ev and reports whether it was accepted.
func (j *Journal) Record(ev TimerEvent) bool {
	select {
	case j.ch <- ev:
		telemetry.SetJournalBacklog(len(j.ch))
		return true
	default:
		telemetry.Inc(telemetry.JournalDropped)
		slog.Warn("journal full, dropping timer event", slog.String("component", "db_journal"), slog.String("timer_id", ev.TimerID), slog.String("kind", ev.Kind))
		return false
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case ev := <-j.ch:
			j.write(ev)
		case <-ctx.Done():
			j.flush()
			return
		}
	}
}

func (j *Journal) flush() {
	for {
		select {
		case ev := <-j.ch:
			j.write(ev)
		default:
			return
		}
	}
}

// write uses its own deadline so events dequeued during shutdown still land.
func (j *Journal) write(ev TimerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.store.InsertTimerEvent(ctx, ev); err != nil {
		slog.Error("journal write failed", slog.String("component", "db_journal"), slog.Any("err", err))
	}
	telemetry.SetJournalBacklog(len(j.ch))
}

// Pending returns the number of queued events.
func (j *Journal) Pending() int { return len(j.ch) }
