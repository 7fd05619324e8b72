// Package dispatch routes one inbound message to a skill or to the generated
// fallback and answers every failure with a single apology.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"riddlebot/pkg/bus"
	"riddlebot/pkg/channel"
	"riddlebot/pkg/config"
	"riddlebot/pkg/fallback"
	"riddlebot/pkg/skill"
	"riddlebot/pkg/users"
)

// Branch is the path a dispatch cycle took.
type Branch string

const (
	// BranchNone means the cycle ended before routing, e.g. an unknown sender.
	BranchNone     Branch = "none"
	BranchSkill    Branch = "skill"
	BranchFallback Branch = "fallback"
)

// Outcome summarises one dispatch cycle.
type Outcome struct {
	RequestID string
	Branch    Branch
	Skill     string
	// Segments holds the messages delivered on the success path.
	Segments []string
	Err      error
}

// Generator produces fallback reply segments. *fallback.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, info users.Info, prompt string) ([]string, error)
}

// EventPublisher receives dispatch lifecycle events. *bus.MessageBus satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event bus.Event) bool
}

// Options wires the dispatcher's collaborators.
type Options struct {
	Registry  *skill.Registry
	Users     users.Directory
	Generator Generator
	// Apology replaces the default apology when non-blank.
	Apology string
	// Events is optional.
	Events EventPublisher
}

// Dispatcher runs dispatch cycles. It holds no per-cycle state and is safe
// for concurrent use.
type Dispatcher struct {
	registry  *skill.Registry
	users     users.Directory
	generator Generator
	apology   string
	events    EventPublisher
	log       *slog.Logger
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, errors.New("dispatch: skill registry is required")
	}
	if opts.Users == nil {
		return nil, errors.New("dispatch: user directory is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("dispatch: fallback generator is required")
	}

	apology := strings.TrimSpace(opts.Apology)
	if apology == "" {
		apology = config.DefaultApologyMessage
	}

	return &Dispatcher{
		registry:  opts.Registry,
		users:     opts.Users,
		generator: opts.Generator,
		apology:   apology,
		events:    opts.Events,
		log:       slog.Default().With("component", "dispatch"),
	}, nil
}

// ResolvePrompt returns the structured "prompt" param whenever it is present,
// even blank, else the message text.
func ResolvePrompt(msg bus.InboundMessage) string {
	if prompt, ok := msg.Param(channel.ParamPrompt); ok {
		return prompt
	}

	return msg.Content
}

// Dispatch runs one cycle for msg, replying through sender. It never returns
// an error to the caller: failures are logged, answered with the apology and
// reported in Outcome.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bus.InboundMessage, sender channel.Sender) (out Outcome) {
	out = Outcome{RequestID: uuid.NewString(), Branch: BranchNone}
	log := d.log.With("request_id", out.RequestID, "channel", msg.Channel, "sender", msg.SenderID)

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("dispatch panicked: %v", r)
			out.Segments = nil
			d.fail(ctx, log, msg, sender, &out)
		}
	}()

	d.publish(ctx, msg, &out, bus.EventDispatchReceived, nil)

	if err := d.run(ctx, log, msg, sender, &out); err != nil {
		out.Err = err
		out.Segments = nil
		d.fail(ctx, log, msg, sender, &out)
		return out
	}

	log.Debug("Dispatch completed", "branch", out.Branch, "skill", out.Skill, "segments", len(out.Segments))
	d.publish(ctx, msg, &out, bus.EventDispatchCompleted, map[string]string{
		"branch":   string(out.Branch),
		"segments": strconv.Itoa(len(out.Segments)),
	})

	return out
}

func (d *Dispatcher) run(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, sender channel.Sender, out *Outcome) error {
	prompt := ResolvePrompt(msg)

	info, ok, err := d.users.Lookup(ctx, msg.SenderID)
	if err != nil {
		return &LookupError{Address: msg.SenderID, Err: err}
	}
	if !ok {
		log.Info("User info not found")
		d.publish(ctx, msg, out, bus.EventUserNotFound, nil)
		return nil
	}

	if matched, ok := skill.Match(prompt, d.registry); ok {
		out.Branch = BranchSkill
		out.Skill = matched.Name
		d.publish(ctx, msg, out, bus.EventSkillMatched, nil)
		return d.runSkill(ctx, log, matched, msg, prompt, info, sender, out)
	}

	out.Branch = BranchFallback
	segments, err := d.generator.Generate(ctx, info, prompt)
	if err != nil {
		var generationErr *fallback.GenerationError
		if !errors.As(err, &generationErr) {
			err = &fallback.GenerationError{Address: info.Address, Err: err}
		}
		return err
	}
	d.publish(ctx, msg, out, bus.EventFallbackGenerated, map[string]string{
		"segments": strconv.Itoa(len(segments)),
	})

	if err := fallback.Deliver(ctx, segments, sender); err != nil {
		return err
	}
	out.Segments = segments

	return nil
}

func (d *Dispatcher) runSkill(ctx context.Context, log *slog.Logger, matched skill.Skill, msg bus.InboundMessage, prompt string, info users.Info, sender channel.Sender, out *Outcome) error {
	c := &skill.Context{Message: msg, Prompt: prompt, User: info, Sender: sender}

	result, err := invoke(ctx, matched, c)
	if err != nil {
		return err
	}

	message, reply := result.Message()
	if !reply {
		return nil
	}
	if c.Sends() > 0 {
		log.Warn("Skill replied directly and returned a message; dropping the returned message", "skill", matched.Name)
		return nil
	}

	if err := sender.Send(ctx, message); err != nil {
		return &fallback.DeliveryError{Index: 0, Total: 1, Err: err}
	}
	out.Segments = []string{message}

	return nil
}

// invoke runs the skill and reports a handler panic as a *skill.HandlerError.
func invoke(ctx context.Context, s skill.Skill, c *skill.Context) (result skill.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &skill.HandlerError{Skill: s.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return skill.Invoke(ctx, s, c)
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, msg bus.InboundMessage, sender channel.Sender, out *Outcome) {
	kind := ErrorKind(out.Err)
	log.Error("Dispatch failed", "kind", kind, "branch", out.Branch, "skill", out.Skill, "error", out.Err)
	d.publish(ctx, msg, out, bus.EventDispatchFailed, map[string]string{"kind": kind})

	if sender == nil {
		return
	}
	if err := sender.Send(ctx, d.apology); err != nil {
		log.Error("Failed to send apology", "error", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, msg bus.InboundMessage, out *Outcome, eventType bus.EventType, payload map[string]string) {
	if d.events == nil {
		return
	}

	event := bus.Event{
		Type:       eventType,
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		SenderID:   msg.SenderID,
		SessionKey: msg.SessionKey,
		RequestID:  out.RequestID,
		Skill:      out.Skill,
		Payload:    payload,
	}
	if out.Err != nil {
		event.Error = out.Err.Error()
	}

	d.events.PublishEvent(ctx, event)
}
