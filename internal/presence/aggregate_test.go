package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gh-presence/internal/domain"
)

func TestAggregate_KeepsMostRecentSessionPerUser(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	recs := []domain.PresenceRecord{
		{SessionID: "b-new", User: "bob", Path: "/p", IsTyping: true, UpdatedAt: base.Add(5 * time.Second)},
		{SessionID: "b-old", User: "bob", Path: "/p", IsTyping: false, UpdatedAt: base},
	}

	for _, order := range [][]domain.PresenceRecord{recs, {recs[1], recs[0]}} {
		out := Aggregate(order, "alice", "/p", base.Add(-time.Minute))
		require.Len(t, out, 1)
		require.Equal(t, "b-new", out[0].SessionID)
		require.True(t, out[0].IsTyping)
	}
}

func TestAggregate_TieBreaksOnSessionID(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := domain.PresenceRecord{SessionID: "aaa", User: "bob", Path: "/p", IsTyping: true, UpdatedAt: ts}
	z := domain.PresenceRecord{SessionID: "zzz", User: "bob", Path: "/p", IsTyping: false, UpdatedAt: ts}

	require.Equal(t, "zzz", Aggregate([]domain.PresenceRecord{a, z}, "", "/p", ts.Add(-time.Second))[0].SessionID)
	require.Equal(t, "zzz", Aggregate([]domain.PresenceRecord{z, a}, "", "/p", ts.Add(-time.Second))[0].SessionID)
}

func TestAggregate_SortsByUser(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	recs := []domain.PresenceRecord{
		{SessionID: "3", User: "carol", Path: "/p", UpdatedAt: ts},
		{SessionID: "1", User: "alice", Path: "/p", UpdatedAt: ts},
		{SessionID: "2", User: "bob", Path: "/p", UpdatedAt: ts},
		{SessionID: "4", User: "", Path: "/p", UpdatedAt: ts},
	}
	out := Aggregate(recs, "dave", "/p", ts.Add(-time.Second))
	require.Equal(t, []string{"alice", "bob", "carol"}, users(out))
}

func TestPartition(t *testing.T) {
	p := Partition([]domain.PresenceRecord{
		{User: "alice"},
		{User: "bob", IsTyping: true},
		{User: "carol"},
	})
	require.Equal(t, []string{"alice", "carol"}, users(p.Reading))
	require.Equal(t, []string{"bob"}, users(p.Writing))
	require.False(t, p.Empty())
	require.True(t, Partition(nil).Empty())
}

func TestDescribe(t *testing.T) {
	reading, writing := Describe(Peers{
		Reading: []domain.PresenceRecord{{User: "alice"}, {User: "bob"}, {User: "carol"}},
		Writing: []domain.PresenceRecord{{User: "dave"}},
	})
	require.Equal(t, "alice, bob and carol are looking at this", reading)
	require.Equal(t, "dave is typing", writing)

	reading, writing = Describe(Peers{Reading: []domain.PresenceRecord{{User: "alice"}, {User: "bob"}}})
	require.Equal(t, "alice and bob are looking at this", reading)
	require.Empty(t, writing)
}
