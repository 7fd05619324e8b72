package channel

import (
	"context"
	"strings"

	"riddlebot/pkg/bus"
)

// Sender delivers text back into the conversation an inbound message came from.
type Sender interface {
	Send(ctx context.Context, content string) error
}

// SenderFunc adapts a plain function to the Sender interface.
type SenderFunc func(ctx context.Context, content string) error

// Send calls f(ctx, content).
func (f SenderFunc) Send(ctx context.Context, content string) error {
	return f(ctx, content)
}

// Handler processes one inbound channel message. Replies go through sender.
type Handler func(ctx context.Context, inbound bus.InboundMessage, sender Sender) error

// Adapter bridges one external transport (for example Telegram) into the bot.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// Structured parameter keys produced by ParseParams.
const (
	ParamCommand = "command"
	ParamPrompt  = "prompt"
)

// ParseParams extracts structured parameters from slash-command text.
//
// "/prompt quiz me" yields {command: prompt, prompt: quiz me}; "/hint" yields
// {command: hint}. Telegram-style "@botname" suffixes on the command are dropped.
// Plain text yields nil.
func ParseParams(text string) map[string]string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return nil
	}

	command, rest, _ := strings.Cut(trimmed[1:], " ")
	command, _, _ = strings.Cut(command, "@")
	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" {
		return nil
	}

	params := map[string]string{ParamCommand: command}
	if command == ParamPrompt {
		if prompt := strings.TrimSpace(rest); prompt != "" {
			params[ParamPrompt] = prompt
		}
	}

	return params
}
