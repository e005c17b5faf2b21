package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gh-presence/internal/localstore"
	"gh-presence/internal/readstate"
)

func newTracker(t *testing.T) *readstate.Tracker {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "read.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	tr, err := readstate.NewTracker(store)
	require.NoError(t, err)
	return tr
}

func TestRun_ToggleAndStatus(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	var out bytes.Buffer

	require.NoError(t, run(ctx, []string{"status", "42", "2024-01-01T00:00:00Z", "3 comments"}, tr, &out))
	require.NoError(t, run(ctx, []string{"toggle", "42", "2024-01-01T00:00:00Z", "3 comments"}, tr, &out))
	require.NoError(t, run(ctx, []string{"status", "42", "2024-01-01T00:00:00Z", "3 comments"}, tr, &out))
	require.NoError(t, run(ctx, []string{"status", "42", "2024-01-01T00:00:00Z", "4 comments"}, tr, &out))
	require.NoError(t, run(ctx, []string{"toggle", "42", "2024-01-01T00:00:00Z", "3 comments"}, tr, &out))

	require.Equal(t, "42 unread\n42 read\n42 read\n42 unread\n42 unread\n", out.String())
}

func TestRun_Usage(t *testing.T) {
	tr := newTracker(t)
	var out bytes.Buffer
	require.ErrorIs(t, run(context.Background(), []string{"toggle", "42"}, tr, &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"erase", "42", "2024-01-01T00:00:00Z"}, tr, &out), errUsage)
	require.Empty(t, out.String())
}
