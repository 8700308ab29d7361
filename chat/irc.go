package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-timer/permission"
)

// TokenFunc returns the bot's chat OAuth token. It is called once per connect
// attempt so a refreshed stored token is picked up.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken returns a TokenFunc that always yields token.
func StaticToken(token string) TokenFunc {
	return func(context.Context) (string, error) {
		if token == "" {
			return "", errors.New("empty oauth token")
		}
		return token, nil
	}
}

// IRCTransport is a Transport over Twitch IRC. Every Connect builds a fresh client.
type IRCTransport struct {
	Username string
	Channel  string
	Token    TokenFunc

	mu     sync.Mutex
	client *twitch.Client
}

// NewIRCTransport returns a transport joining channel as username.
func NewIRCTransport(username, channel string, token TokenFunc) *IRCTransport {
	return &IRCTransport{Username: username, Channel: channel, Token: token}
}

// Connect dials Twitch and blocks until the client stops.
func (t *IRCTransport) Connect(h Handler) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	tok, err := t.Token(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("load chat token: %w", err)
	}

	client := twitch.NewClient(t.Username, ircPassword(tok))
	client.OnConnect(h.Connected)
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		h.Message(fromPrivateMessage(msg, t.Username))
	})
	client.Join(t.Channel)

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	err = client.Connect()

	t.mu.Lock()
	if t.client == client {
		t.client = nil
	}
	t.mu.Unlock()
	return err
}

// Say writes a PRIVMSG on the live client.
func (t *IRCTransport) Say(channel, text string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	client.Say(channel, text)
	return nil
}

// Disconnect closes the live client, if any.
func (t *IRCTransport) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

// ircPassword adds the "oauth:" prefix Twitch IRC expects.
func ircPassword(tok string) string {
	if strings.HasPrefix(tok, "oauth:") {
		return tok
	}
	return "oauth:" + tok
}

func fromPrivateMessage(msg twitch.PrivateMessage, botName string) Message {
	roles := permission.Roles{
		Broadcaster: msg.User.Badges["broadcaster"] > 0 || strings.EqualFold(msg.User.Name, msg.Channel),
		Moderator:   msg.User.Badges["moderator"] > 0 || msg.Tags["mod"] == "1",
	}
	return Message{
		ID:      msg.ID,
		Channel: msg.Channel,
		User:    msg.User.Name,
		Text:    msg.Message,
		Roles:   roles,
		Self:    strings.EqualFold(msg.User.Name, botName),
	}
}
