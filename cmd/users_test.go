package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"riddlebot/pkg/config"
	"riddlebot/pkg/users"
)

func TestUpsertUserKeepsUnsetFields(t *testing.T) {
	store := users.NewMemoryDirectory([]config.UserEntry{{Address: "0xabc", Name: "Ada", Wallet: "0x1"}})

	info, err := upsertUser(context.Background(), store, " 0xabc ", "", "0x2")
	require.NoError(t, err)
	require.Equal(t, "Ada", info.Name)
	require.Equal(t, "0x2", info.Wallet)

	stored, ok, err := store.Lookup(context.Background(), "0xabc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0x2", stored.Wallet)
}

func TestUpsertUserRequiresAddress(t *testing.T) {
	store := users.NewMemoryDirectory(nil)

	if _, err := upsertUser(context.Background(), store, "  ", "name", ""); err == nil {
		t.Fatal("expected error for blank address")
	}
}

func TestWriteUsersTable(t *testing.T) {
	var out bytes.Buffer
	err := writeUsers(&out, []users.Info{
		{Address: "0xabc", Name: "Ada"},
		{Address: "0xdef", Wallet: "0x9"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "ADDRESS"))
	require.Contains(t, lines[1], "Ada")
	require.Contains(t, lines[2], "0x9")
}
