package board

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmperorKunDis/Praut-App/internal/model"
	"github.com/EmperorKunDis/Praut-App/internal/store"
)

// fakeConn captures everything the participant's writer goroutine sends.
type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	messages chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{messages: make(chan []byte, 256)}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.messages <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// nextEvent blocks for the next delivered event.
func nextEvent(t *testing.T, c *fakeConn) wireEvent {
	t.Helper()
	select {
	case data := <-c.messages:
		var ev wireEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return wireEvent{}
	}
}

// nextEventOfType skips unrelated events (presence churn) until the wanted
// type arrives.
func nextEventOfType(t *testing.T, c *fakeConn, eventType string) wireEvent {
	t.Helper()
	for {
		ev := nextEvent(t, c)
		if ev.Type == eventType {
			return ev
		}
	}
}

// drainUntil collects events until one of the given type arrives, returning
// everything seen before it.
func drainUntil(t *testing.T, c *fakeConn, eventType string) []wireEvent {
	t.Helper()
	var seen []wireEvent
	for {
		ev := nextEvent(t, c)
		if ev.Type == eventType {
			return seen
		}
		seen = append(seen, ev)
	}
}

func newTestRegistry(t *testing.T, boardID int64, opts Options) (*Registry, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.CreateBoard(boardID)
	return NewRegistry(st, opts), st
}

func pencilDraft(boardID, creator int64, x float64) *model.DrawingElement {
	return &model.DrawingElement{
		WhiteboardID: boardID,
		Type:         model.ElementPencil,
		CreatorID:    creator,
		ElementProps: model.ElementProps{
			Points:      []model.Point{{X: x, Y: x}},
			Color:       "#000000",
			StrokeWidth: 2,
		},
	}
}

func TestJoinUnknownBoard(t *testing.T) {
	reg := NewRegistry(store.NewMemoryStore(), Options{})

	p := NewParticipant(1, "alice", newFakeConn(), 8)
	defer p.Close()

	_, err := reg.Join(context.Background(), 99, p)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Zero(t, reg.RoomCount())
}

func TestJoinDeliversSnapshotFirst(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, Options{})
	ctx := context.Background()

	connA := newFakeConn()
	alice := NewParticipant(1, "alice", connA, 8)
	defer alice.Close()

	room, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)

	ev := nextEvent(t, connA)
	require.Equal(t, EventSnapshot, ev.Type)

	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &snap))
	assert.Equal(t, int64(1), snap.WhiteboardID)
	assert.Empty(t, snap.Elements)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "alice", snap.Participants[0].Nickname)
	assert.Equal(t, displayPalette[0], snap.Participants[0].Color)

	// commit three elements before anyone else joins
	for i := 1; i <= 3; i++ {
		_, err := room.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(1, 1, float64(i))})
		require.NoError(t, err)
		committed := nextEventOfType(t, connA, EventElementCommitted)
		var el model.DrawingElement
		require.NoError(t, json.Unmarshal(committed.Payload, &el))
		assert.Equal(t, int64(i), el.Sequence)
	}

	// a late joiner gets all three in the snapshot and none by broadcast
	connB := newFakeConn()
	bob := NewParticipant(2, "bob", connB, 8)
	defer bob.Close()

	_, err = reg.Join(ctx, 1, bob)
	require.NoError(t, err)

	ev = nextEvent(t, connB)
	require.Equal(t, EventSnapshot, ev.Type)
	require.NoError(t, json.Unmarshal(ev.Payload, &snap))
	require.Len(t, snap.Elements, 3)
	for i, el := range snap.Elements {
		assert.Equal(t, int64(i+1), el.Sequence)
	}
	assert.Len(t, snap.Participants, 2)

	// the next commit reaches bob exactly once, as a broadcast
	_, err = room.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(1, 1, 4)})
	require.NoError(t, err)

	committed := nextEventOfType(t, connB, EventElementCommitted)
	var el model.DrawingElement
	require.NoError(t, json.Unmarshal(committed.Payload, &el))
	assert.Equal(t, int64(4), el.Sequence)
}

func TestConcurrentCommitsGetUniqueSequences(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, Options{})
	ctx := context.Background()

	conn := newFakeConn()
	alice := NewParticipant(1, "alice", conn, 256)
	defer alice.Close()

	_, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	results := make(chan *model.DrawingElement, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			el, err := reg.Submit(ctx, 1, Mutation{Op: MutationAppend, Element: pencilDraft(1, 1, float64(i))})
			assert.NoError(t, err)
			results <- el
		}(i)
	}
	wg.Wait()
	close(results)

	seqs := make(map[int64]bool)
	for el := range results {
		require.NotNil(t, el)
		seqs[el.Sequence] = true
	}
	require.Len(t, seqs, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, seqs[i], "sequence %d missing", i)
	}
}

func TestUpdateNonexistentElementDoesNotBroadcast(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, Options{})
	ctx := context.Background()

	connA := newFakeConn()
	alice := NewParticipant(1, "alice", connA, 16)
	defer alice.Close()
	connB := newFakeConn()
	bob := NewParticipant(2, "bob", connB, 16)
	defer bob.Close()

	room, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)
	_, err = reg.Join(ctx, 1, bob)
	require.NoError(t, err)

	_, err = room.Submit(ctx, Mutation{Op: MutationUpdate, ElementID: "ghost", Origin: alice})
	assert.ErrorIs(t, err, store.ErrElementNotFound)

	// a sentinel commit flushes the broadcast queue; nothing update-shaped
	// may precede it on bob's connection
	_, err = room.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(1, 1, 1)})
	require.NoError(t, err)

	before := drainUntil(t, connB, EventElementCommitted)
	for _, ev := range before {
		assert.NotEqual(t, EventElementUpdated, ev.Type)
	}
}

func TestDeleteIsIdempotentAndBroadcastOnce(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, Options{})
	ctx := context.Background()

	connA := newFakeConn()
	alice := NewParticipant(1, "alice", connA, 16)
	defer alice.Close()
	connB := newFakeConn()
	bob := NewParticipant(2, "bob", connB, 16)
	defer bob.Close()

	room, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)
	_, err = reg.Join(ctx, 1, bob)
	require.NoError(t, err)

	el, err := room.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(1, 1, 1)})
	require.NoError(t, err)

	// both deletes succeed at the protocol level
	_, err = room.Submit(ctx, Mutation{Op: MutationDelete, ElementID: el.ID, Origin: alice})
	require.NoError(t, err)
	_, err = room.Submit(ctx, Mutation{Op: MutationDelete, ElementID: el.ID, Origin: bob})
	require.NoError(t, err)

	deleted := nextEventOfType(t, connB, EventElementDeleted)
	var payload DeletedPayload
	require.NoError(t, json.Unmarshal(deleted.Payload, &payload))
	assert.Equal(t, el.ID, payload.ID)

	// sentinel flush: the duplicate delete produced no second broadcast
	_, err = room.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(1, 1, 2)})
	require.NoError(t, err)
	before := drainUntil(t, connB, EventElementCommitted)
	for _, ev := range before {
		assert.NotEqual(t, EventElementDeleted, ev.Type)
	}
}

func TestProvisionalExcludesOriginAndSkipsPersistence(t *testing.T) {
	reg, st := newTestRegistry(t, 1, Options{})
	ctx := context.Background()

	connA := newFakeConn()
	alice := NewParticipant(1, "alice", connA, 16)
	defer alice.Close()
	connB := newFakeConn()
	bob := NewParticipant(2, "bob", connB, 16)
	defer bob.Close()

	room, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)
	_, err = reg.Join(ctx, 1, bob)
	require.NoError(t, err)

	g := NewGesture()
	draft := g.Start(1, alice.ID, model.ElementPencil, model.Point{X: 1, Y: 1}, "#000", 2)
	room.RelayProvisional(alice, draft)

	ev := nextEventOfType(t, connB, EventElementProvisional)
	var payload ProvisionalPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, alice.ID, payload.ParticipantID)
	require.NotNil(t, payload.Element)
	assert.Empty(t, payload.Element.ID, "drafts carry no id")
	assert.Zero(t, payload.Element.Sequence)

	// drafts never reach the store
	elements, err := st.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, elements)

	// the originator renders locally; a sentinel commit proves no echo
	_, err = room.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(1, 2, 9)})
	require.NoError(t, err)
	before := drainUntil(t, connA, EventElementCommitted)
	for _, e := range before {
		assert.NotEqual(t, EventElementProvisional, e.Type)
	}
}

func TestGestureCancelledRelay(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, Options{})
	ctx := context.Background()

	connA := newFakeConn()
	alice := NewParticipant(1, "alice", connA, 16)
	defer alice.Close()
	connB := newFakeConn()
	bob := NewParticipant(2, "bob", connB, 16)
	defer bob.Close()

	room, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)
	_, err = reg.Join(ctx, 1, bob)
	require.NoError(t, err)

	room.RelayGestureCancelled(alice)

	ev := nextEventOfType(t, connB, EventGestureCancelled)
	var payload CancelledPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, alice.ID, payload.ParticipantID)
}

func TestCapacityLimit(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, Options{MaxParticipants: 1})
	ctx := context.Background()

	alice := NewParticipant(1, "alice", newFakeConn(), 8)
	defer alice.Close()
	bob := NewParticipant(2, "bob", newFakeConn(), 8)
	defer bob.Close()

	_, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)

	_, err = reg.Join(ctx, 1, bob)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestRoomEvictedWhenEmptyAndSurvivesRejoin(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, Options{})
	ctx := context.Background()

	connA := newFakeConn()
	alice := NewParticipant(1, "alice", connA, 16)

	room, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.RoomCount())

	for i := 1; i <= 2; i++ {
		_, err := room.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(1, 1, float64(i))})
		require.NoError(t, err)
	}

	reg.Leave(1, alice)
	alice.Close()
	assert.Zero(t, reg.RoomCount(), "empty room is evicted")

	// durable state survives the eviction
	connB := newFakeConn()
	bob := NewParticipant(2, "bob", connB, 16)
	defer bob.Close()

	_, err = reg.Join(ctx, 1, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.RoomCount())

	ev := nextEvent(t, connB)
	require.Equal(t, EventSnapshot, ev.Type)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &snap))
	require.Len(t, snap.Elements, 2)
	assert.Equal(t, int64(2), snap.Elements[1].Sequence)
}

func TestParticipantJoinLeaveEvents(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, Options{})
	ctx := context.Background()

	connA := newFakeConn()
	alice := NewParticipant(1, "alice", connA, 16)
	defer alice.Close()

	_, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)
	nextEventOfType(t, connA, EventSnapshot)

	connB := newFakeConn()
	bob := NewParticipant(2, "bob", connB, 16)
	defer bob.Close()

	_, err = reg.Join(ctx, 1, bob)
	require.NoError(t, err)

	joined := nextEventOfType(t, connA, EventParticipantJoined)
	var info PresenceInfo
	require.NoError(t, json.Unmarshal(joined.Payload, &info))
	assert.Equal(t, int64(2), info.UserID)
	assert.Equal(t, "bob", info.Nickname)
	assert.Equal(t, displayPalette[1], info.Color)

	reg.Leave(1, bob)
	left := nextEventOfType(t, connA, EventParticipantLeft)
	require.NoError(t, json.Unmarshal(left.Payload, &info))
	assert.Equal(t, int64(2), info.UserID)
}

func TestIndependentBoardsDoNotShareSequences(t *testing.T) {
	st := store.NewMemoryStore()
	st.CreateBoard(1)
	st.CreateBoard(2)
	reg := NewRegistry(st, Options{})
	ctx := context.Background()

	alice := NewParticipant(1, "alice", newFakeConn(), 16)
	defer alice.Close()
	bob := NewParticipant(2, "bob", newFakeConn(), 16)
	defer bob.Close()

	room1, err := reg.Join(ctx, 1, alice)
	require.NoError(t, err)
	room2, err := reg.Join(ctx, 2, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.RoomCount())

	el1, err := room1.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(1, 1, 1)})
	require.NoError(t, err)
	el2, err := room2.Submit(ctx, Mutation{Op: MutationAppend, Element: pencilDraft(2, 2, 1)})
	require.NoError(t, err)

	assert.Equal(t, int64(1), el1.Sequence)
	assert.Equal(t, int64(1), el2.Sequence)
}
