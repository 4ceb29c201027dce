package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewManager(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, mr
}

func TestPresenceLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	err := m.SetPresence(ctx, Entry{UserID: 1, Nickname: "alice", WhiteboardID: 10, Color: "#E53E3E"})
	require.NoError(t, err)
	err = m.SetPresence(ctx, Entry{UserID: 2, Nickname: "bob", WhiteboardID: 10, Color: "#3182CE"})
	require.NoError(t, err)

	entries, err := m.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := make(map[int64]Entry)
	for _, e := range entries {
		byID[e.UserID] = e
	}
	assert.Equal(t, "alice", byID[1].Nickname)
	assert.Equal(t, "#3182CE", byID[2].Color)
	assert.NotZero(t, byID[1].ConnectedAt)

	require.NoError(t, m.Remove(ctx, 10, 1))

	entries, err = m.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].UserID)
}

func TestListIsScopedPerBoard(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetPresence(ctx, Entry{UserID: 1, Nickname: "alice", WhiteboardID: 10}))
	require.NoError(t, m.SetPresence(ctx, Entry{UserID: 1, Nickname: "alice", WhiteboardID: 20}))
	require.NoError(t, m.SetPresence(ctx, Entry{UserID: 2, Nickname: "bob", WhiteboardID: 20}))

	entries, err := m.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = m.List(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestHeartbeatExtendsTTL(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetPresence(ctx, Entry{UserID: 1, Nickname: "alice", WhiteboardID: 10}))

	mr.FastForward(30 * time.Second)
	require.NoError(t, m.Heartbeat(ctx, 10, 1))

	// the refreshed TTL carries past the original expiry
	mr.FastForward(45 * time.Second)
	entries, err := m.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStaleEntriesAgeOut(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetPresence(ctx, Entry{UserID: 1, Nickname: "alice", WhiteboardID: 10}))

	mr.FastForward(61 * time.Second)

	entries, err := m.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "lapsed entries are pruned from the member set")

	err = m.Heartbeat(ctx, 10, 1)
	assert.Error(t, err, "heartbeat after expiry must fail so the caller re-registers")
}

func TestRemoveIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetPresence(ctx, Entry{UserID: 1, Nickname: "alice", WhiteboardID: 10}))
	require.NoError(t, m.Remove(ctx, 10, 1))
	require.NoError(t, m.Remove(ctx, 10, 1))
}
