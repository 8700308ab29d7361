package timer

import (
	"fmt"
	"time"
)

// FormatRemaining renders d in whole minutes (rounded up) when at least one full
// minute is left, otherwise in seconds (rounded up).
func FormatRemaining(d time.Duration) string {
	if d >= time.Minute {
		return plural(ceilDiv(d, time.Minute), "minute")
	}
	return plural(ceilDiv(d, time.Second), "second")
}

// CeilMinutes rounds d up to whole minutes; non-positive durations yield 0.
func CeilMinutes(d time.Duration) int {
	return int(ceilDiv(d, time.Minute))
}

func ceilDiv(d, unit time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + unit - 1) / unit)
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func every(intervalMinutes int) string {
	if intervalMinutes == 1 {
		return "every minute"
	}
	return fmt.Sprintf("every %d minutes", intervalMinutes)
}

// Chat copy. Every message addresses the owner.

func msgStarted(owner string, minutes, interval int) string {
	return fmt.Sprintf("@%s Timer started for %s! I'll post an update %s.", owner, plural(int64(minutes), "minute"), every(interval))
}

func msgUpdate(owner string, remaining time.Duration) string {
	return fmt.Sprintf("@%s %s remaining on your timer.", owner, FormatRemaining(remaining))
}

func msgCompleted(owner string, minutes int) string {
	return fmt.Sprintf("@%s Your %d minute timer is done!", owner, minutes)
}

func msgPaused(owner string, remaining time.Duration) string {
	return fmt.Sprintf("@%s Timer paused with %s remaining. Type !resume to continue.", owner, FormatRemaining(remaining))
}

func msgNothingToPause(owner string) string {
	return fmt.Sprintf("@%s You don't have a running timer to pause.", owner)
}

func msgResumed(owner string, remaining time.Duration) string {
	return fmt.Sprintf("@%s Timer resumed! %s remaining.", owner, FormatRemaining(remaining))
}

func msgNothingToResume(owner string) string {
	return fmt.Sprintf("@%s You don't have a paused timer to resume.", owner)
}

func msgStopped(owner string, n int) string {
	return fmt.Sprintf("@%s Stopped %s.", owner, plural(int64(n), "timer"))
}

func msgNothingToStop(owner string) string {
	return fmt.Sprintf("@%s You don't have any active timers to stop.", owner)
}

func msgNoTimers(owner string) string {
	return fmt.Sprintf("@%s You don't have any active timers. Start one with !<minutes>min, e.g. !10min", owner)
}

func msgStatus(owner string, st Status) string {
	s := fmt.Sprintf("@%s Your timer: %s remaining", owner, plural(int64(st.RemainingMinutes), "minute"))
	if st.Paused {
		s += " (paused)"
	}
	return s + "."
}
