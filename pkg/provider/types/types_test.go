package types

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestUsagePointer(t *testing.T) {
	if got := UsagePointer(TokenUsage{}); got != nil {
		t.Fatalf("UsagePointer(zero) = %#v, want nil", got)
	}

	got := UsagePointer(TokenUsage{InputTokens: 3})
	if got == nil || got.InputTokens != 3 {
		t.Fatalf("UsagePointer = %#v", got)
	}
}

func TestSessionTableCreatesOncePerAddress(t *testing.T) {
	table := NewSessionTable[string](2)
	calls := 0
	create := func() (string, error) {
		calls++
		return "session", nil
	}

	if _, created, err := table.GetOrCreate(" 42 ", create); err != nil || !created {
		t.Fatalf("first GetOrCreate created=%v err=%v", created, err)
	}
	if _, created, err := table.GetOrCreate("42", create); err != nil || created {
		t.Fatalf("second GetOrCreate created=%v err=%v", created, err)
	}
	if calls != 1 {
		t.Fatalf("create calls = %d, want 1", calls)
	}
}

func TestSessionTableEvictsLeastRecentlyUsed(t *testing.T) {
	table := NewSessionTable[int](2)
	for i, address := range []string{"a", "b", "c"} {
		value := i
		if _, _, err := table.GetOrCreate(address, func() (int, error) { return value, nil }); err != nil {
			t.Fatalf("GetOrCreate(%s) error: %v", address, err)
		}
	}

	if _, ok := table.Get("a"); ok {
		t.Fatal("expected oldest session to be evicted")
	}
	if table.Len() != 2 {
		t.Fatalf("len = %d, want 2", table.Len())
	}

	table.Forget("c")
	if _, ok := table.Get("c"); ok {
		t.Fatal("expected forgotten session to be gone")
	}
}

func TestSessionTableCreateError(t *testing.T) {
	table := NewSessionTable[string](0)
	wantErr := errors.New("boom")

	_, _, err := table.GetOrCreate("a", func() (string, error) { return "", wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if table.Len() != 0 {
		t.Fatal("expected failed creation not to be stored")
	}
}

func TestSessionTableSlowCreateDoesNotBlockOtherAddresses(t *testing.T) {
	table := NewSessionTable[string](4)
	if _, _, err := table.GetOrCreate("bob", func() (string, error) { return "bob-session", nil }); err != nil {
		t.Fatalf("seed bob: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	aliceDone := make(chan error, 1)
	go func() {
		_, _, err := table.GetOrCreate("alice", func() (string, error) {
			close(started)
			<-release
			return "alice-session", nil
		})
		aliceDone <- err
	}()
	<-started
	defer close(release)

	others := make(chan struct{})
	go func() {
		defer close(others)
		if value, created, err := table.GetOrCreate("bob", func() (string, error) {
			return "", errors.New("bob should already exist")
		}); err != nil || created || value != "bob-session" {
			t.Errorf("GetOrCreate(bob) = %q created=%v err=%v", value, created, err)
		}
		if _, ok := table.Get("bob"); !ok {
			t.Error("Get(bob) missing")
		}
		if _, created, err := table.GetOrCreate("carol", func() (string, error) { return "carol-session", nil }); err != nil || !created {
			t.Errorf("GetOrCreate(carol) created=%v err=%v", created, err)
		}
	}()

	select {
	case <-others:
	case <-time.After(2 * time.Second):
		t.Fatal("other addresses blocked behind a pending create")
	}

	if _, ok := table.Get("alice"); ok {
		t.Fatal("alice stored before her create finished")
	}
}

func TestSessionTableSharesConcurrentCreation(t *testing.T) {
	table := NewSessionTable[string](4)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	create := func() (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "shared", nil
	}

	const callers = 8
	type result struct {
		value   string
		created bool
		err     error
	}
	results := make(chan result, callers)
	go func() {
		value, created, err := table.GetOrCreate("alice", create)
		results <- result{value, created, err}
	}()
	<-started

	var wg sync.WaitGroup
	for range callers - 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, created, err := table.GetOrCreate("alice", create)
			results <- result{value, created, err}
		}()
	}
	close(release)
	wg.Wait()

	createdCount := 0
	for range callers {
		got := <-results
		if got.err != nil || got.value != "shared" {
			t.Fatalf("GetOrCreate = %q err=%v", got.value, got.err)
		}
		if got.created {
			createdCount++
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("create calls = %d, want 1", calls.Load())
	}
	if createdCount != 1 {
		t.Fatalf("created reported %d times, want 1", createdCount)
	}
}
