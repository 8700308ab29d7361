package chat

import "github.com/onnwee/chat-timer/permission"

// Message is one inbound chat line.
type Message struct {
	ID      string
	Channel string
	User    string
	Text    string
	Roles   permission.Roles
	// Self is set when the bot itself authored the line.
	Self bool
}

// Handler receives transport events for a single session.
type Handler interface {
	// Connected fires when the server accepts the session. It may fire more than
	// once per session if the transport reconnects internally.
	Connected()
	Message(Message)
}

// Transport is a chat connection. Connect blocks for the whole session and
// returns when it ends. If Handler.Connected was never called, the attempt
// counts as failed.
type Transport interface {
	Connect(h Handler) error
	Say(channel, text string) error
	Disconnect()
}
