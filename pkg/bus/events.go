package bus

import (
	"context"
	"time"
)

type EventType string

const (
	EventDispatchReceived  EventType = "dispatch_received"
	EventUserNotFound      EventType = "user_not_found"
	EventSkillMatched      EventType = "skill_matched"
	EventFallbackGenerated EventType = "fallback_generated"
	EventDispatchCompleted EventType = "dispatch_completed"
	EventDispatchFailed    EventType = "dispatch_failed"
)

// Event is one dispatch lifecycle notification fanned out to subscribers.
type Event struct {
	Type       EventType         `json:"type"`
	At         time.Time         `json:"at"`
	Channel    string            `json:"channel,omitempty"`
	ChatID     string            `json:"chat_id,omitempty"`
	SenderID   string            `json:"sender_id,omitempty"`
	SessionKey string            `json:"session_key,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Skill      string            `json:"skill,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// PublishEvent offers event to every subscriber. Subscribers with a full
// buffer miss the event; the publisher never blocks.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	// Sends never block; the read lock is held so no channel closes mid-send.
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed() {
		return false
	}
	for _, ch := range mb.subscribers {
		select {
		case ch <- event:
		default:
		}
	}

	return true
}

// SubscribeEvents registers a buffered event channel. The channel is closed
// by the returned cancel func, by ctx ending, or by Close.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	ch := make(chan Event, buffer)

	mb.mu.Lock()
	if mb.closed() {
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := mb.nextID
	mb.nextID++
	mb.subscribers[id] = ch
	mb.mu.Unlock()

	cancelled := make(chan struct{})
	unsubscribe := func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		if sub, ok := mb.subscribers[id]; ok {
			delete(mb.subscribers, id)
			close(sub)
			close(cancelled)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
		case <-cancelled:
		}
	}()

	return ch, unsubscribe
}
