// Package skill holds the static registry of deterministic command handlers,
// the trigger matcher that selects one, and the invoker that runs it.
package skill

import (
	"context"
	"sync/atomic"

	"riddlebot/pkg/bus"
	"riddlebot/pkg/channel"
	"riddlebot/pkg/users"
)

// HandlerFunc runs a matched skill for one dispatch cycle.
type HandlerFunc func(ctx context.Context, c *Context) (Result, error)

// Skill is a named handler bound to one or more trigger substrings.
type Skill struct {
	Name        string
	Description string
	Triggers    []string
	Handler     HandlerFunc
}

// Group is a named, ordered collection of skills.
type Group struct {
	Name   string
	Skills []Skill
}

// Context is everything a handler may use during one dispatch cycle.
type Context struct {
	Message bus.InboundMessage
	Prompt  string
	User    users.Info
	Sender  channel.Sender

	sends atomic.Int32
}

// Send delivers content directly into the conversation.
func (c *Context) Send(ctx context.Context, content string) error {
	c.sends.Add(1)
	return c.Sender.Send(ctx, content)
}

// Sends reports how many direct sends the handler attempted.
func (c *Context) Sends() int {
	return int(c.sends.Load())
}

// Result is the tagged outcome of a handler: either a message to deliver, or
// nothing further to do.
type Result struct {
	message string
	reply   bool
}

// Handled returns a Result whose message the dispatcher delivers.
func Handled(message string) Result {
	return Result{message: message, reply: true}
}

// HandledSilently returns a Result with nothing left to deliver.
func HandledSilently() Result {
	return Result{}
}

// Message returns the message to deliver and whether there is one.
func (r Result) Message() (string, bool) {
	return r.message, r.reply
}
