package chat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-timer/testutil"
)

var errDropped = errors.New("connection reset")

// fakeTransport hands every Connect call to the test as a fakeSession.
type fakeTransport struct {
	sessions chan *fakeSession
	said     testutil.RecordingNotifier

	mu          sync.Mutex
	current     *fakeSession
	disconnects int
}

type fakeSession struct {
	h    Handler
	done chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sessions: make(chan *fakeSession, 16)}
}

func (f *fakeTransport) Connect(h Handler) error {
	s := &fakeSession{h: h, done: make(chan error, 1)}
	f.mu.Lock()
	f.current = s
	f.mu.Unlock()
	f.sessions <- s
	return <-s.done
}

func (f *fakeTransport) Say(channel, text string) error {
	f.said.Say(channel, text)
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	if f.current != nil {
		f.current.end(errors.New("client called Disconnect()"))
	}
}

func (s *fakeSession) end(err error) {
	select {
	case s.done <- err:
	default:
	}
}

func (f *fakeTransport) next(t *testing.T) *fakeSession {
	t.Helper()
	select {
	case s := <-f.sessions:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no connect attempt")
		return nil
	}
}

func (f *fakeTransport) expectNoSession(t *testing.T) {
	t.Helper()
	select {
	case <-f.sessions:
		t.Fatal("unexpected connect attempt")
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
