package users

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"riddlebot/pkg/config"

	"github.com/stretchr/testify/require"
)

type countingDirectory struct {
	mu    sync.Mutex
	calls int
	info  Info
	ok    bool
	err   error
}

func (d *countingDirectory) Lookup(context.Context, string) (Info, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.info, d.ok, d.err
}

func (d *countingDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestMemoryDirectoryLookup(t *testing.T) {
	dir := NewMemoryDirectory([]config.UserEntry{
		{Address: " 42 ", Name: "Ada"},
		{Address: "  "},
	})

	info, ok, err := dir.Lookup(context.Background(), "42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Ada", info.Name)

	_, ok, err = dir.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)

	list, err := dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMemoryDirectorySaveKeepsCreatedAt(t *testing.T) {
	dir := NewMemoryDirectory(nil)
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, dir.Save(context.Background(), Info{Address: "7", CreatedAt: first}))
	require.NoError(t, dir.Save(context.Background(), Info{Address: "7", Name: "Grace"}))

	info, ok, err := dir.Lookup(context.Background(), "7")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Grace", info.Name)
	require.Equal(t, first, info.CreatedAt)

	require.ErrorIs(t, dir.Save(context.Background(), Info{}), ErrAddressRequired)
}

func TestSQLiteDirectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	_, ok, err := dir.Lookup(ctx, "42")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, dir.Save(ctx, Info{Address: "42", Name: "Ada"}))
	require.NoError(t, dir.Save(ctx, Info{Address: "42", Name: "Ada", Wallet: "0xabc"}))
	require.NoError(t, dir.Save(ctx, Info{Address: "7", Name: "Grace"}))

	info, ok, err := dir.Lookup(ctx, " 42 ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0xabc", info.Wallet)
	require.False(t, info.CreatedAt.IsZero())

	list, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "42", list[0].Address)
	require.Equal(t, "7", list[1].Address)
}

func TestSQLiteDirectoryInMemory(t *testing.T) {
	ctx := context.Background()
	dir, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	require.NoError(t, dir.Save(ctx, Info{Address: "1"}))
	_, ok, err := dir.Lookup(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	require.Error(t, err)
}

func TestCachedDirectoryCachesHitsOnly(t *testing.T) {
	next := &countingDirectory{info: Info{Address: "42"}, ok: true}
	cached := NewCachedDirectory(next, 8, time.Minute)

	for i := 0; i < 3; i++ {
		_, ok, err := cached.Lookup(context.Background(), "42")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 1, next.callCount())

	cached.Invalidate("42")
	_, _, _ = cached.Lookup(context.Background(), "42")
	require.Equal(t, 2, next.callCount())

	miss := &countingDirectory{}
	cachedMiss := NewCachedDirectory(miss, 0, 0)
	for i := 0; i < 2; i++ {
		_, ok, err := cachedMiss.Lookup(context.Background(), "nobody")
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.Equal(t, 2, miss.callCount())
}

func TestCachedDirectoryPropagatesErrors(t *testing.T) {
	wantErr := errors.New("db down")
	cached := NewCachedDirectory(&countingDirectory{err: wantErr}, 1, time.Minute)

	_, _, err := cached.Lookup(context.Background(), "42")
	require.ErrorIs(t, err, wantErr)
}

func TestAutoRegisterDirectory(t *testing.T) {
	store := NewMemoryDirectory(nil)
	dir := NewAutoRegisterDirectory(store, nil)

	info, ok, err := dir.Lookup(context.Background(), "99")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "99", info.Address)

	_, ok, err = store.Lookup(context.Background(), "99")
	require.NoError(t, err)
	require.True(t, ok, "expected auto-registered user to be persisted")

	_, ok, err = dir.Lookup(context.Background(), "  ")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Ada", Info{Address: "1", Name: "Ada"}.DisplayName())
	require.Equal(t, "1", Info{Address: "1"}.DisplayName())
}
