// Package bus carries chat messages between front-ends and the dispatch
// worker in-process, and fans dispatch lifecycle events out to observers.
package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

// MessageBus is a pair of buffered queues plus an event fan-out. The zero
// value is not usable; call NewMessageBus.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      uint64

	done      chan struct{}
	closeOnce sync.Once
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, defaultBufferSize),
		outbound:    make(chan OutboundMessage, defaultBufferSize),
		subscribers: make(map[uint64]chan Event),
		done:        make(chan struct{}),
	}
}

// PublishInbound queues a received message. It reports false once ctx is done
// or the bus is closed.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	return enqueue(ctx, mb.done, mb.inbound, msg)
}

// ConsumeInbound blocks for the next received message.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return dequeue(ctx, mb.done, mb.inbound)
}

// PublishOutbound queues the reply for one inbound message.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	return enqueue(ctx, mb.done, mb.outbound, msg)
}

// SubscribeOutbound blocks for the next reply.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return dequeue(ctx, mb.done, mb.outbound)
}

// Close unblocks all producers and consumers and closes event subscriptions.
// It is safe to call more than once.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		defer mb.mu.Unlock()
		for id, ch := range mb.subscribers {
			close(ch)
			delete(mb.subscribers, id)
		}
	})
}

func (mb *MessageBus) closed() bool {
	return isDone(mb.done)
}

func enqueue[T any](ctx context.Context, done <-chan struct{}, queue chan<- T, msg T) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	// Checked first so a closed bus never accepts into a free buffer slot.
	if ctx.Err() != nil || isDone(done) {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case queue <- msg:
		return true
	}
}

func dequeue[T any](ctx context.Context, done <-chan struct{}, queue <-chan T) (T, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	var zero T
	select {
	case <-ctx.Done():
		return zero, false
	case <-done:
		return zero, false
	case msg := <-queue:
		return msg, true
	}
}

func isDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
