package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/onnwee/chat-timer/permission"
	"github.com/onnwee/chat-timer/telemetry"
	"github.com/onnwee/chat-timer/timer"
)

// Outcome describes what the dispatcher did with a message.
type Outcome string

const (
	OutcomeSelf      Outcome = "self"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeOffline   Outcome = "offline"
	OutcomeDenied    Outcome = "denied"
	OutcomeHandled   Outcome = "handled"
)

const msgDenied = "@%s Sorry, you don't have permission to use timer commands."

// Dispatcher turns inbound chat lines into registry operations.
type Dispatcher struct {
	BotName    string
	MaxMinutes int

	gate      *permission.Gate
	registry  *timer.Registry
	dedup     *DedupWindow
	notify    timer.Notifier
	connected func() bool
}

// NewDispatcher wires a dispatcher. connected gates all command handling.
func NewDispatcher(botName string, maxMinutes int, gate *permission.Gate, registry *timer.Registry, dedup *DedupWindow, notify timer.Notifier, connected func() bool) *Dispatcher {
	return &Dispatcher{
		BotName:    botName,
		MaxMinutes: maxMinutes,
		gate:       gate,
		registry:   registry,
		dedup:      dedup,
		notify:     notify,
		connected:  connected,
	}
}

// Handle processes one message: self and duplicate lines are dropped, unknown
// lines ignored, and gated commands checked against the permission gate.
func (d *Dispatcher) Handle(ctx context.Context, m Message) Outcome {
	var out Outcome
	var cmd Command
	telemetry.TimeFunc(telemetry.DispatchDuration, func() {
		cmd, out = d.handle(ctx, m)
	})
	if cmd.Kind != CmdNone {
		telemetry.CountCommand(cmd.Kind.String(), string(out))
	}
	return out
}

func (d *Dispatcher) handle(ctx context.Context, m Message) (Command, Outcome) {
	if m.Self || (d.BotName != "" && strings.EqualFold(m.User, d.BotName)) {
		return Command{}, OutcomeSelf
	}
	if !d.dedup.Admit(m.ID) {
		telemetry.Inc(telemetry.MessagesDeduped)
		slog.Debug("chat: duplicate message dropped", slog.String("component", "chat"), slog.String("msg_id", m.ID))
		return Command{}, OutcomeDuplicate
	}
	cmd, ok := ParseCommand(m.Text, d.MaxMinutes)
	if !ok {
		return Command{}, OutcomeIgnored
	}

	corr := m.ID
	if corr == "" {
		corr = uuid.NewString()
	}
	ctx = telemetry.WithCorrelation(ctx, corr)
	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.command", telemetry.ChatAttrs(m.Channel, m.User, cmd.Kind.String())...)
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "chat"), slog.String("user", m.User), slog.String("command", cmd.Kind.String()))

	if d.connected != nil && !d.connected() {
		logger.Debug("chat: command ignored while disconnected")
		return cmd, OutcomeOffline
	}
	if cmd.Kind.Gated() && !d.gate.IsAuthorized(m.User, m.Roles) {
		logger.Info("chat: command denied")
		d.notify.Say(m.Channel, fmt.Sprintf(msgDenied, m.User))
		return cmd, OutcomeDenied
	}

	switch cmd.Kind {
	case CmdStart:
		d.registry.Start(m.User, cmd.Minutes, cmd.Interval, m.Channel)
	case CmdStop:
		d.registry.Stop(m.User, m.Channel)
	case CmdPause:
		d.registry.Pause(m.User, m.Channel)
	case CmdResume:
		d.registry.Resume(m.User, m.Channel)
	case CmdTimers:
		d.registry.StatusFor(m.User, m.Channel)
	}
	logger.Debug("chat: command handled")
	telemetry.SetSpanSuccess(span)
	return cmd, OutcomeHandled
}
