package types

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const DefaultMaxSessions = 1000

// SessionTable maps a sender address to provider-side conversation state.
//
// The table is bounded; the least recently used conversation is forgotten
// when it is full, and the next message from that sender starts a new one.
type SessionTable[V any] struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, V]
	creating singleflight.Group
}

// NewSessionTable builds a table holding at most size conversations.
func NewSessionTable[V any](size int) *SessionTable[V] {
	if size <= 0 {
		size = DefaultMaxSessions
	}

	cache, err := lru.New[string, V](size)
	if err != nil {
		// lru.New only fails for non-positive sizes, which are replaced above.
		panic(err)
	}

	return &SessionTable[V]{cache: cache}
}

// GetOrCreate returns the conversation for address, creating it once when
// missing. Concurrent callers for the same address share one creation; create
// runs outside the table lock, so other addresses are never held up by it.
// The created flag is true only for the caller whose create ran.
func (t *SessionTable[V]) GetOrCreate(address string, create func() (V, error)) (V, bool, error) {
	address = strings.TrimSpace(address)
	if value, ok := t.Get(address); ok {
		return value, false, nil
	}

	created := false
	result, err, _ := t.creating.Do(address, func() (any, error) {
		if value, ok := t.Get(address); ok {
			return value, nil
		}

		value, err := create()
		if err != nil {
			return nil, err
		}

		t.mu.Lock()
		t.cache.Add(address, value)
		t.mu.Unlock()

		created = true
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}

	value, _ := result.(V)
	return value, created, nil
}

// Get returns the conversation for address when present.
func (t *SessionTable[V]) Get(address string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cache.Get(strings.TrimSpace(address))
}

// Forget drops the conversation for address.
func (t *SessionTable[V]) Forget(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache.Remove(strings.TrimSpace(address))
}

// Len reports the number of tracked conversations.
func (t *SessionTable[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cache.Len()
}
