package gateway

import (
	"log/slog"
	"time"

	"riddlebot/pkg/bus"
)

// runEventLog logs dispatch events and counts them for the status payload.
// It returns when the subscription channel closes.
func (s *Service) runEventLog(events <-chan bus.Event) {
	log := s.log.With("component", "gateway.events")
	for event := range events {
		s.status.countDispatch(event.Type)
		logEvent(log, event)
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{
		"event_type", event.Type,
		"request_id", event.RequestID,
		"channel", event.Channel,
		"chat_id", event.ChatID,
		"sender", event.SenderID,
		"timestamp", event.At.UTC().Format(time.RFC3339Nano),
	}
	if event.Skill != "" {
		attrs = append(attrs, "skill", event.Skill)
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case bus.EventDispatchFailed:
		log.Warn("Dispatch event", append(attrs, "error", event.Error)...)
	case bus.EventUserNotFound, bus.EventDispatchCompleted:
		log.Info("Dispatch event", attrs...)
	default:
		log.Debug("Dispatch event", attrs...)
	}
}
