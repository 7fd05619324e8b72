// Package session runs the dispatcher behind an in-process message bus for
// the local terminal chat.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"riddlebot/pkg/bus"
	"riddlebot/pkg/channel"
	"riddlebot/pkg/dispatch"
)

const (
	cliChannelName = "cli"
	cliChatID      = "local"

	metaRequestID = "request_id"
	metaBranch    = "branch"
	metaDispatch  = "dispatch_id"
)

// Dispatcher runs one dispatch cycle. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg bus.InboundMessage, sender channel.Sender) dispatch.Outcome
}

// Reply is everything the bot sent back for one local prompt.
type Reply struct {
	Segments  []string
	Branch    dispatch.Branch
	RequestID string
	// Failed reports that the segments hold the apology for a failed cycle.
	Failed bool
}

// Text joins the segments one per line.
func (r Reply) Text() string {
	return strings.Join(r.Segments, "\n")
}

// Local coordinates a single local chat session.
//
// It owns one message bus and one worker goroutine. Prompts are routed
// through the bus so the terminal UI and the gateway share dispatch
// semantics.
type Local struct {
	address    string
	messageBus *bus.MessageBus
	log        *slog.Logger

	cancelWorker context.CancelFunc
	workerDone   chan struct{}

	mu             sync.Mutex
	requestCounter atomic.Uint64
}

// Start launches the bus worker. The session takes ownership of messageBus
// and closes it on Close. address is the sender identity used for every
// prompt.
func Start(ctx context.Context, dispatcher Dispatcher, messageBus *bus.MessageBus, address string, log *slog.Logger) (*Local, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if messageBus == nil {
		return nil, errors.New("message bus is required")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("sender address is required")
	}
	if log == nil {
		log = slog.Default()
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	session := &Local{
		address:      address,
		messageBus:   messageBus,
		log:          log.With("component", "session.local"),
		cancelWorker: cancelWorker,
		workerDone:   make(chan struct{}),
	}

	go func() {
		defer close(session.workerDone)
		runDispatchWorker(workerCtx, dispatcher, messageBus)
	}()

	return session, nil
}

// Address returns the sender identity of this session.
func (s *Local) Address() string {
	return s.address
}

// Prompt sends text through the bus and waits for the bot's reply.
func (s *Local) Prompt(ctx context.Context, text string) (Reply, error) {
	if s == nil {
		return Reply{}, errors.New("local session is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	requestID := strconv.FormatUint(s.requestCounter.Add(1), 10)
	inbound := bus.InboundMessage{
		Channel:    cliChannelName,
		SenderID:   s.address,
		ChatID:     cliChatID,
		SessionKey: cliChannelName + ":" + s.address,
		Content:    text,
		Params:     channel.ParseParams(text),
		Metadata:   map[string]string{metaRequestID: requestID},
	}

	if ok := s.messageBus.PublishInbound(ctx, inbound); !ok {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}
		return Reply{}, errors.New("unable to enqueue prompt")
	}

	for {
		outbound, ok := s.messageBus.SubscribeOutbound(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return Reply{}, err
			}
			return Reply{}, errors.New("unable to receive reply")
		}

		// Replies to abandoned prompts are still queued ahead of ours.
		if got := outbound.Metadata[metaRequestID]; got != requestID {
			s.log.Debug("dropping stale reply", "request_id", got, "want", requestID)
			continue
		}

		return replyFromOutbound(outbound), nil
	}
}

// Close stops the worker and closes the bus.
func (s *Local) Close() {
	if s == nil {
		return
	}

	s.cancelWorker()
	s.messageBus.Close()
	<-s.workerDone
}

// collectingSender buffers everything a dispatch cycle sends.
type collectingSender struct {
	mu       sync.Mutex
	segments []string
}

func (c *collectingSender) Send(_ context.Context, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.segments = append(c.segments, content)
	return nil
}

func (c *collectingSender) collected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.segments))
	copy(out, c.segments)
	return out
}

func runDispatchWorker(ctx context.Context, dispatcher Dispatcher, messageBus *bus.MessageBus) {
	for {
		inbound, ok := messageBus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		sender := &collectingSender{}
		outcome := dispatcher.Dispatch(ctx, inbound, sender)
		segments := sender.collected()

		outbound := bus.OutboundMessage{
			Channel:    inbound.Channel,
			ChatID:     inbound.ChatID,
			SessionKey: inbound.SessionKey,
			Content:    strings.Join(segments, "\n"),
			Segments:   segments,
			Metadata: map[string]string{
				metaRequestID: inbound.Metadata[metaRequestID],
				metaDispatch:  outcome.RequestID,
				metaBranch:    string(outcome.Branch),
			},
		}
		if outcome.Err != nil {
			outbound.Error = outcome.Err.Error()
		}

		if ok := messageBus.PublishOutbound(ctx, outbound); !ok {
			return
		}
	}
}

func replyFromOutbound(outbound bus.OutboundMessage) Reply {
	return Reply{
		Segments:  outbound.Segments,
		Branch:    dispatch.Branch(outbound.Metadata[metaBranch]),
		RequestID: outbound.Metadata[metaDispatch],
		Failed:    outbound.Error != "",
	}
}
