package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-timer/db"
	"github.com/onnwee/chat-timer/permission"
	"github.com/onnwee/chat-timer/testutil"
	"github.com/onnwee/chat-timer/timer"
)

type recordingJournal struct {
	mu     sync.Mutex
	events []db.TimerEvent
}

func (j *recordingJournal) Record(ev db.TimerEvent) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return true
}

func (j *recordingJournal) kinds() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.events))
	for _, ev := range j.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestBot(t *testing.T, perms permission.Config, connect bool) (*Bot, *fakeTransport, *testutil.FakeClock, *recordingJournal) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Time{})
	ft := newFakeTransport()
	j := &recordingJournal{}
	b := NewBot(Options{
		BotName:     "timerbot",
		Channel:     "streamer",
		Permissions: perms,
		Timer:       timer.DefaultOptions(),
		Supervisor:  DefaultSupervisorOptions(),
		MaxMinutes:  10080,
		Journal:     j,
	}, clk, ft)
	if connect {
		if err := b.Supervisor.Connect(); err != nil {
			t.Fatal(err)
		}
		ft.next(t).h.Connected()
		clk.Advance(time.Second)
		ft.said.Reset()
	}
	return b, ft, clk, j
}

var modsOnly = permission.Config{AllowModsAndBroadcaster: true}

func msg(id, user, text string) Message {
	return Message{ID: id, Channel: "streamer", User: user, Text: text}
}

func TestDispatchDuplicateMessageOnce(t *testing.T) {
	b, ft, _, _ := newTestBot(t, modsOnly, true)
	m := msg("abc", "streamer", "!10min")
	m.Roles.Broadcaster = true

	if got := b.Dispatcher.Handle(context.Background(), m); got != OutcomeHandled {
		t.Fatalf("first = %s", got)
	}
	if got := b.Dispatcher.Handle(context.Background(), m); got != OutcomeDuplicate {
		t.Fatalf("second = %s", got)
	}
	if n := ft.said.Count("Timer started"); n != 1 {
		t.Errorf("start confirmations = %d, want 1", n)
	}
	if b.Registry.Len() != 1 {
		t.Errorf("timers = %d, want 1", b.Registry.Len())
	}
}

func TestDispatchMessagesWithoutIDBypassDedup(t *testing.T) {
	b, ft, _, _ := newTestBot(t, permission.Config{}, true)
	for i := 0; i < 2; i++ {
		if got := b.Dispatcher.Handle(context.Background(), msg("", "viewer", "!timers")); got != OutcomeHandled {
			t.Fatalf("run %d = %s", i, got)
		}
	}
	if n := ft.said.Count("don't have any active timers"); n != 2 {
		t.Errorf("status replies = %d, want 2", n)
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	b, ft, _, _ := newTestBot(t, modsOnly, true)
	for i, line := range []string{"!10min", "!pause", "!resume", "!stoptimer"} {
		got := b.Dispatcher.Handle(context.Background(), msg(string(rune('a'+i)), "viewer", line))
		if got != OutcomeDenied {
			t.Errorf("%s: outcome = %s, want denied", line, got)
		}
	}
	if n := ft.said.Count("@viewer Sorry, you don't have permission"); n != 4 {
		t.Errorf("refusals = %d, want 4", n)
	}
	if b.Registry.Len() != 0 {
		t.Error("denied command created a timer")
	}
}

func TestDispatchTimersOpenToAll(t *testing.T) {
	b, ft, _, _ := newTestBot(t, permission.Config{AllowList: []string{"alice"}}, true)
	if got := b.Dispatcher.Handle(context.Background(), msg("1", "bob", "!timers")); got != OutcomeHandled {
		t.Fatalf("outcome = %s", got)
	}
	if ft.said.Last() == "" {
		t.Error("expected a status reply")
	}
}

func TestDispatchIgnoresWhileDisconnected(t *testing.T) {
	b, ft, _, _ := newTestBot(t, permission.Config{}, false)
	if got := b.Dispatcher.Handle(context.Background(), msg("1", "viewer", "!10min")); got != OutcomeOffline {
		t.Fatalf("outcome = %s, want offline", got)
	}
	if b.Registry.Len() != 0 || len(ft.said.Messages()) != 0 {
		t.Error("offline command had side effects")
	}
}

func TestDispatchSelfAndChatter(t *testing.T) {
	b, _, _, _ := newTestBot(t, permission.Config{}, true)
	self := msg("1", "TimerBot", "!10min")
	if got := b.Dispatcher.Handle(context.Background(), self); got != OutcomeSelf {
		t.Errorf("bot name outcome = %s", got)
	}
	flagged := msg("2", "someone", "!10min")
	flagged.Self = true
	if got := b.Dispatcher.Handle(context.Background(), flagged); got != OutcomeSelf {
		t.Errorf("self flag outcome = %s", got)
	}
	if got := b.Dispatcher.Handle(context.Background(), msg("3", "viewer", "hello there")); got != OutcomeIgnored {
		t.Errorf("chatter outcome = %s", got)
	}
}

func TestBotTenMinuteTimerEndToEnd(t *testing.T) {
	b, ft, clk, j := newTestBot(t, permission.Config{}, true)
	ft.mu.Lock()
	sess := ft.current
	ft.mu.Unlock()
	sess.h.Message(msg("m1", "alice", "!10min"))

	clk.Advance(10 * time.Minute)
	if n := ft.said.Count("remaining on your timer"); n != 9 {
		t.Errorf("updates = %d, want 9", n)
	}
	if got := ft.said.Last(); got != "@alice Your 10 minute timer is done!" {
		t.Errorf("last = %q", got)
	}
	if b.Registry.Len() != 0 {
		t.Error("completed timer still registered")
	}
	kinds := j.kinds()
	if len(kinds) < 2 || kinds[0] != "started" || kinds[len(kinds)-1] != "completed" {
		t.Errorf("journal kinds = %v", kinds)
	}
}

func TestBotStatusAndShutdown(t *testing.T) {
	b, ft, clk, _ := newTestBot(t, permission.Config{AllowList: []string{"Alice"}}, true)
	b.Dispatcher.Handle(context.Background(), msg("1", "alice", "!30min"))
	clk.Advance(90 * time.Second)

	st := b.Status()
	if !st.Connected || st.State != "connected" || st.ActiveTimers != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.UptimeSeconds != 91 {
		t.Errorf("uptime = %d, want 91", st.UptimeSeconds)
	}
	if st.Permissions != "broadcaster; alice" {
		t.Errorf("permissions = %q", st.Permissions)
	}
	if timers := b.Timers(); len(timers) != 1 || timers[0].Owner != "alice" {
		t.Errorf("timers = %+v", timers)
	}

	b.Shutdown()
	if b.Registry.Len() != 0 || b.Ready() {
		t.Error("shutdown left state behind")
	}
	if ft.disconnects != 1 {
		t.Errorf("disconnects = %d", ft.disconnects)
	}
}

func TestFromPrivateMessage(t *testing.T) {
	pm := twitch.PrivateMessage{
		ID:      "id-1",
		Channel: "streamer",
		Message: "!pause",
		User:    twitch.User{Name: "modperson", Badges: map[string]int{"moderator": 1}},
		Tags:    map[string]string{},
	}
	m := fromPrivateMessage(pm, "timerbot")
	if !m.Roles.Moderator || m.Roles.Broadcaster || m.Self {
		t.Errorf("roles = %+v self=%v", m.Roles, m.Self)
	}
	if m.ID != "id-1" || m.User != "modperson" || m.Text != "!pause" {
		t.Errorf("message = %+v", m)
	}

	pm.User = twitch.User{Name: "streamer", Badges: map[string]int{}}
	if m := fromPrivateMessage(pm, "timerbot"); !m.Roles.Broadcaster {
		t.Error("channel owner should be broadcaster")
	}
	pm.User = twitch.User{Name: "TimerBot"}
	if m := fromPrivateMessage(pm, "timerbot"); !m.Self {
		t.Error("bot's own line should be self")
	}
}

func TestIRCPassword(t *testing.T) {
	if got := ircPassword("abc"); got != "oauth:abc" {
		t.Errorf("got %q", got)
	}
	if got := ircPassword("oauth:abc"); got != "oauth:abc" {
		t.Errorf("got %q", got)
	}
}
