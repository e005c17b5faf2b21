package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gh-presence/internal/domain"
	"gh-presence/internal/presence"
)

type recordingDriver struct {
	events []string
}

func (r *recordingDriver) Navigate(path string) { r.events = append(r.events, "nav:"+path) }

func (r *recordingDriver) Input(hasUnsentText bool) {
	if hasUnsentText {
		r.events = append(r.events, "typing")
	} else {
		r.events = append(r.events, "idle")
	}
}

func TestReadEvents(t *testing.T) {
	in := strings.NewReader(`https://github.com/acme/widgets/pull/3/files#alice
typing

idle
https://github.com/acme/widgets
https://github.com/acme/widgets/issues/9
`)
	d := &recordingDriver{}
	require.NoError(t, readEvents(context.Background(), in, d, zap.NewNop()))
	require.Equal(t, []string{
		"nav:/acme/widgets/pull/3",
		"typing",
		"idle",
		"nav:",
		"nav:/acme/widgets/issues/9",
	}, d.events)
}

func TestReadEvents_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &recordingDriver{}
	require.NoError(t, readEvents(ctx, strings.NewReader("typing\n"), d, zap.NewNop()))
	require.Empty(t, d.events)
}

func TestReportPeers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reportPeers(zap.New(core))(presence.Peers{
		Reading: []domain.PresenceRecord{{User: "alice"}, {User: "bob"}},
		Writing: []domain.PresenceRecord{{User: "carol"}},
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "alice and bob are looking at this", fields["reading"])
	require.Equal(t, "carol is typing", fields["writing"])
}
