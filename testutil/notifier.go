package testutil

import (
	"strings"
	"sync"
)

// Said is one recorded chat message.
type Said struct {
	Channel string
	Text    string
}

// RecordingNotifier captures every Say call.
type RecordingNotifier struct {
	mu   sync.Mutex
	said []Said
}

// Say records the message.
func (n *RecordingNotifier) Say(channel, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.said = append(n.said, Said{Channel: channel, Text: text})
}

// Messages returns a copy of everything said so far.
func (n *RecordingNotifier) Messages() []Said {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Said(nil), n.said...)
}

// Last returns the most recent text, or "" when nothing was said.
func (n *RecordingNotifier) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.said) == 0 {
		return ""
	}
	return n.said[len(n.said)-1].Text
}

// Count returns how many messages contain substr.
func (n *RecordingNotifier) Count(substr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.said {
		if strings.Contains(s.Text, substr) {
			c++
		}
	}
	return c
}

// Reset discards recorded messages.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.said = nil
}
