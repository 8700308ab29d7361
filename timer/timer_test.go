package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-timer/testutil"
)

const testChannel = "#streamer"

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) TimerEvent(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *testutil.FakeClock, *testutil.RecordingNotifier, *eventLog) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Time{})
	n := &testutil.RecordingNotifier{}
	log := &eventLog{}
	return NewRegistry(clk, n, DefaultOptions(), log), clk, n, log
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{9 * time.Minute, "9 minutes"},
		{61 * time.Second, "2 minutes"},
		{time.Minute, "1 minute"},
		{59 * time.Second, "59 seconds"},
		{time.Second, "1 second"},
		{500 * time.Millisecond, "1 second"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.in); got != tt.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTenMinuteTimerCompletes(t *testing.T) {
	r, clk, n, log := newTestRegistry(t)

	tm := r.Start("bob", 10, 1, testChannel)
	if tm.Minutes != 10 || tm.IntervalMinutes != 1 {
		t.Fatalf("unexpected timer %+v", tm)
	}
	if got := n.Last(); got != "@bob Timer started for 10 minutes! I'll post an update every minute." {
		t.Fatalf("confirmation = %q", got)
	}

	clk.Advance(10 * time.Minute)

	if got := n.Count("remaining on your timer"); got != 9 {
		t.Errorf("progress updates = %d, want 9", got)
	}
	if n.Count("@bob 9 minutes remaining") != 1 || n.Count("@bob 1 minute remaining") != 1 {
		t.Errorf("unexpected update texts: %+v", n.Messages())
	}
	if got := n.Last(); got != "@bob Your 10 minute timer is done!" {
		t.Errorf("completion = %q", got)
	}
	if r.Len() != 0 {
		t.Errorf("registry still holds %d timers", r.Len())
	}
	if clk.Pending() != 0 {
		t.Errorf("tick not cancelled: %d pending", clk.Pending())
	}
	if got := r.StatusFor("bob", testChannel); len(got) != 0 {
		t.Errorf("status after completion = %+v", got)
	}
	kinds := log.kinds()
	if kinds[0] != EventStarted || kinds[len(kinds)-1] != EventCompleted {
		t.Errorf("events = %v", kinds)
	}
}

func TestCustomIntervalUpdates(t *testing.T) {
	r, clk, n, _ := newTestRegistry(t)
	r.Start("bob", 15, 2, testChannel)
	if n.Count("every 2 minutes") != 1 {
		t.Fatalf("confirmation = %q", n.Last())
	}

	clk.Advance(time.Minute + 30*time.Second)
	if got := n.Count("remaining on your timer"); got != 0 {
		t.Fatalf("update before first interval: %d", got)
	}
	clk.Advance(30 * time.Second)
	if got := n.Last(); got != "@bob 13 minutes remaining on your timer." {
		t.Fatalf("first update = %q", got)
	}
	clk.Advance(13 * time.Minute)
	if got := n.Count("remaining on your timer"); got != 7 {
		t.Errorf("updates = %d, want 7", got)
	}
	if got := n.Last(); got != "@bob Your 15 minute timer is done!" {
		t.Errorf("completion = %q", got)
	}
}

func TestPauseResumePreservesRemaining(t *testing.T) {
	r, clk, n, _ := newTestRegistry(t)
	tm := r.Start("bob", 10, 1, testChannel)

	clk.Advance(3 * time.Minute)
	if !r.Pause("bob", testChannel) {
		t.Fatal("pause failed")
	}
	before := tm.Status(clk.Now())
	if before.Remaining != 7*time.Minute || !before.Paused {
		t.Fatalf("status at pause = %+v", before)
	}
	updates := n.Count("remaining on your timer")

	clk.Advance(5 * time.Minute)
	during := tm.Status(clk.Now())
	if during.Remaining != 7*time.Minute || during.RemainingMinutes != 7 {
		t.Errorf("remaining moved while paused: %+v", during)
	}
	if got := n.Count("remaining on your timer"); got != updates {
		t.Errorf("updates posted while paused: %d -> %d", updates, got)
	}
	if tm.Pause(clk.Now()) {
		t.Error("second pause should fail")
	}

	if !r.Resume("bob", testChannel) {
		t.Fatal("resume failed")
	}
	if got := tm.Status(clk.Now()).Remaining; got != 7*time.Minute {
		t.Errorf("remaining after resume = %v, want 7m", got)
	}
	if got := n.Last(); got != "@bob Timer resumed! 7 minutes remaining." {
		t.Errorf("resume reply = %q", got)
	}
	if tm.Resume(clk.Now()) {
		t.Error("resume of running timer should fail")
	}

	clk.Advance(7 * time.Minute)
	if tm.State() != Completed || r.Len() != 0 {
		t.Errorf("timer not completed after remaining time: state=%v len=%d", tm.State(), r.Len())
	}
}

func TestCleanupIdempotent(t *testing.T) {
	r, clk, n, log := newTestRegistry(t)
	tm := r.Start("bob", 5, 1, testChannel)
	said := len(n.Messages())
	events := len(log.kinds())

	if !tm.Cleanup() {
		t.Fatal("first cleanup should retire the timer")
	}
	if tm.Cleanup() {
		t.Error("second cleanup reported work")
	}
	if r.Len() != 0 || clk.Pending() != 0 {
		t.Errorf("len=%d pending=%d after cleanup", r.Len(), clk.Pending())
	}
	if len(n.Messages()) != said || len(log.kinds()) != events {
		t.Error("cleanup produced notifications")
	}
	clk.Advance(10 * time.Minute)
	if n.Count("is done") != 0 {
		t.Error("cleaned up timer still completed")
	}
}

func TestStartReplacesExistingTimer(t *testing.T) {
	r, clk, n, log := newTestRegistry(t)
	first := r.Start("bob", 10, 1, testChannel)
	clk.Advance(time.Second)
	second := r.Start("bob", 5, 1, testChannel)

	if r.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", r.Len())
	}
	if first.State() != Completed {
		t.Errorf("replaced timer state = %v", first.State())
	}
	if clk.Pending() != 1 {
		t.Errorf("pending ticks = %d, want 1", clk.Pending())
	}
	// a late cleanup of the old timer must not evict the replacement
	first.Cleanup()
	if r.Len() != 1 || r.get("bob") != second {
		t.Error("replacement evicted by stale cleanup")
	}

	clk.Advance(10 * time.Minute)
	if n.Count("Your 5 minute timer is done") != 1 || n.Count("Your 10 minute timer is done") != 0 {
		t.Errorf("unexpected completions: %+v", n.Messages())
	}
	found := false
	for _, k := range log.kinds() {
		if k == EventReplaced {
			found = true
		}
	}
	if !found {
		t.Error("replaced event not emitted")
	}
}

func TestTimersAreIndependentPerUser(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	r.Start("bob", 10, 1, testChannel)
	r.Start("Bob", 10, 1, testChannel)
	r.Start("alice", 3, 1, testChannel)
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3 (owners are case-sensitive)", r.Len())
	}
	snap := r.Snapshot()
	if snap[0].Owner != "Bob" || snap[1].Owner != "alice" || snap[2].Owner != "bob" {
		t.Errorf("snapshot order = %+v", snap)
	}
}

func TestPauseAfterTimeRanOutCompletes(t *testing.T) {
	clk := testutil.NewFakeClock(time.Time{})
	n := &testutil.RecordingNotifier{}
	log := &eventLog{}
	// the first tick lands after the timer has already run out
	r := NewRegistry(clk, n, Options{TickInterval: 2 * time.Minute}, log)
	tm := r.Start("bob", 1, 1, testChannel)

	clk.Advance(time.Minute)
	if tm.State() != Running {
		t.Fatalf("state before pause = %v, want running", tm.State())
	}
	if r.Pause("bob", testChannel) {
		t.Fatal("pause of an expired timer succeeded")
	}
	if tm.State() != Completed || r.Len() != 0 {
		t.Errorf("expired timer not completed: state=%v len=%d", tm.State(), r.Len())
	}
	if n.Count("Timer paused") != 0 {
		t.Errorf("paused reply posted: %+v", n.Messages())
	}
	if n.Count("@bob Your 1 minute timer is done!") != 1 {
		t.Errorf("completion not announced: %+v", n.Messages())
	}
	if got := n.Last(); got != "@bob You don't have a running timer to pause." {
		t.Errorf("reply = %q", got)
	}
	kinds := log.kinds()
	if len(kinds) != 2 || kinds[0] != EventStarted || kinds[1] != EventCompleted {
		t.Errorf("events = %v, want started then completed", kinds)
	}

	clk.Advance(2 * time.Minute)
	if got := n.Count("timer is done"); got != 1 {
		t.Errorf("completion announced %d times", got)
	}
}

func TestPauseWithoutTimer(t *testing.T) {
	r, _, n, _ := newTestRegistry(t)
	if r.Pause("bob", testChannel) {
		t.Fatal("pause without timer succeeded")
	}
	if got := n.Last(); got != "@bob You don't have a running timer to pause." {
		t.Errorf("reply = %q", got)
	}
	if r.Resume("bob", testChannel) {
		t.Fatal("resume without timer succeeded")
	}
	if got := n.Last(); got != "@bob You don't have a paused timer to resume." {
		t.Errorf("reply = %q", got)
	}
	if r.Len() != 0 {
		t.Error("state changed")
	}
}

func TestStopAndStatus(t *testing.T) {
	r, clk, n, _ := newTestRegistry(t)

	if got := r.StatusFor("bob", testChannel); got != nil {
		t.Fatalf("status with no timers = %+v", got)
	}
	if got := n.Last(); got != "@bob You don't have any active timers. Start one with !<minutes>min, e.g. !10min" {
		t.Errorf("empty status reply = %q", got)
	}

	r.Start("bob", 10, 1, testChannel)
	clk.Advance(90 * time.Second)
	st := r.StatusFor("bob", testChannel)
	if len(st) != 1 || st[0].RemainingMinutes != 9 || st[0].Paused {
		t.Fatalf("status = %+v", st)
	}
	if got := n.Last(); got != "@bob Your timer: 9 minutes remaining." {
		t.Errorf("status reply = %q", got)
	}
	r.Pause("bob", testChannel)
	r.StatusFor("bob", testChannel)
	if got := n.Last(); got != "@bob Your timer: 9 minutes remaining (paused)." {
		t.Errorf("paused status reply = %q", got)
	}

	if got := r.Stop("bob", testChannel); got != 1 {
		t.Errorf("stop = %d, want 1", got)
	}
	if got := n.Last(); got != "@bob Stopped 1 timer." {
		t.Errorf("stop reply = %q", got)
	}
	if got := r.Stop("bob", testChannel); got != 0 {
		t.Errorf("second stop = %d", got)
	}
	if got := n.Last(); got != "@bob You don't have any active timers to stop." {
		t.Errorf("empty stop reply = %q", got)
	}
	if clk.Pending() != 0 {
		t.Errorf("pending = %d", clk.Pending())
	}
}

func TestShutdownAll(t *testing.T) {
	r, clk, n, log := newTestRegistry(t)
	r.Start("bob", 10, 1, testChannel)
	r.Start("alice", 10, 1, testChannel)
	r.Pause("alice", testChannel)
	said := len(n.Messages())

	if got := r.ShutdownAll(); got != 2 {
		t.Errorf("ShutdownAll = %d, want 2", got)
	}
	if r.Len() != 0 || clk.Pending() != 0 {
		t.Errorf("len=%d pending=%d", r.Len(), clk.Pending())
	}
	if len(n.Messages()) != said {
		t.Error("shutdown posted chat messages")
	}
	shutdowns := 0
	for _, k := range log.kinds() {
		if k == EventShutdown {
			shutdowns++
		}
	}
	if shutdowns != 2 {
		t.Errorf("shutdown events = %d", shutdowns)
	}
}
