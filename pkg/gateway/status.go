package gateway

import (
	"sync"
	"time"

	"riddlebot/pkg/bus"
)

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status           string                  `json:"status"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	ProviderLastOKAt string                  `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string                  `json:"provider_last_error,omitempty"`
	Channels         map[string]channelState `json:"channels"`
	Dispatches       map[string]int64        `json:"dispatches,omitempty"`
}

// statusTracker is the gateway's mutable health state. Ready means at least
// one channel is running and the last provider check succeeded.
type statusTracker struct {
	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
	channels         map[string]channelState
	dispatches       map[bus.EventType]int64
}

func newStatusTracker(channelNames ...string) *statusTracker {
	t := &statusTracker{
		channels:   make(map[string]channelState, len(channelNames)),
		dispatches: make(map[bus.EventType]int64),
	}
	for _, name := range channelNames {
		t.channels[name] = channelState{}
	}
	return t
}

func (t *statusTracker) markStarted(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedAt = at
}

func (t *statusTracker) setChannel(name string, state channelState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[name] = state
}

func (t *statusTracker) providerChecked(at time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.providerLastErr = err.Error()
		return
	}
	t.providerLastErr = ""
	t.providerLastOKAt = at
}

func (t *statusTracker) countDispatch(eventType bus.EventType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatches[eventType]++
}

func (t *statusTracker) ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.providerLastOKAt.IsZero() || t.providerLastErr != "" {
		return false
	}
	for _, state := range t.channels {
		if state.Running {
			return true
		}
	}
	return false
}

func (t *statusTracker) snapshot(status string, now time.Time) statusResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := statusResponse{
		Status:          status,
		ProviderLastErr: t.providerLastErr,
		Channels:        make(map[string]channelState, len(t.channels)),
	}
	if !t.startedAt.IsZero() {
		out.UptimeSeconds = int64(now.Sub(t.startedAt).Seconds())
	}
	if !t.providerLastOKAt.IsZero() {
		out.ProviderLastOKAt = t.providerLastOKAt.Format(time.RFC3339)
	}
	for name, state := range t.channels {
		out.Channels[name] = state
	}
	if len(t.dispatches) > 0 {
		out.Dispatches = make(map[string]int64, len(t.dispatches))
		for eventType, count := range t.dispatches {
			out.Dispatches[string(eventType)] = count
		}
	}

	return out
}
