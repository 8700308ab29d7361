package chat

import (
	"regexp"
	"strconv"
	"strings"
)

// CommandKind classifies a chat line.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdStart
	CmdStop
	CmdPause
	CmdResume
	CmdTimers
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdTimers:
		return "timers"
	default:
		return "none"
	}
}

// Gated reports whether the command mutates timers and therefore needs permission.
func (k CommandKind) Gated() bool {
	switch k {
	case CmdStart, CmdStop, CmdPause, CmdResume:
		return true
	}
	return false
}

// Command is a parsed chat command. Minutes and Interval are set for CmdStart only.
type Command struct {
	Kind     CommandKind
	Minutes  int
	Interval int
}

// startPattern is case-sensitive: "!10MIN" is not a start command.
var startPattern = regexp.MustCompile(`^!([1-9][0-9]*)min([1-9][0-9]*)?$`)

// Twitch appends this tag character to repeated messages to defeat its duplicate filter.
const dupSuffix = "\U000E0000"

// ParseCommand classifies line. Values that do not fit an int or exceed maxMinutes
// are treated as unrecognized. A maxMinutes <= 0 disables the upper bound.
func ParseCommand(line string, maxMinutes int) (Command, bool) {
	line = strings.TrimSpace(strings.ReplaceAll(line, dupSuffix, ""))
	if line == "" || line[0] != '!' {
		return Command{}, false
	}
	if m := startPattern.FindStringSubmatch(line); m != nil {
		minutes, ok := boundedAtoi(m[1], maxMinutes)
		if !ok {
			return Command{}, false
		}
		interval := 1
		if m[2] != "" {
			if interval, ok = boundedAtoi(m[2], maxMinutes); !ok {
				return Command{}, false
			}
		}
		return Command{Kind: CmdStart, Minutes: minutes, Interval: interval}, true
	}
	switch strings.ToLower(line) {
	case "!stoptimer":
		return Command{Kind: CmdStop}, true
	case "!pause":
		return Command{Kind: CmdPause}, true
	case "!resume":
		return Command{Kind: CmdResume}, true
	case "!timers":
		return Command{Kind: CmdTimers}, true
	}
	return Command{}, false
}

func boundedAtoi(s string, max int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	if max > 0 && n > max {
		return 0, false
	}
	return n, true
}
