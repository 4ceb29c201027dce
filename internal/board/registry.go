package board

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/EmperorKunDis/Praut-App/internal/model"
	"github.com/EmperorKunDis/Praut-App/internal/store"
)

// Options bound the runtime resources of each room
type Options struct {
	MaxParticipants int
	MutationQueue   int
	BroadcastQueue  int
}

func (o Options) withDefaults() Options {
	if o.MaxParticipants <= 0 {
		o.MaxParticipants = 50
	}
	if o.MutationQueue <= 0 {
		o.MutationQueue = 256
	}
	if o.BroadcastQueue <= 0 {
		o.BroadcastQueue = 256
	}
	return o
}

// Registry owns the whiteboardId → Room table. Entries are created on first
// join and evicted when the last participant leaves, under the registry
// lock; room state itself is mutated only through each room's serialized
// queue. Unrelated whiteboards process independently.
type Registry struct {
	store store.Store
	opts  Options

	mu    sync.Mutex
	rooms map[int64]*Room
}

func NewRegistry(st store.Store, opts Options) *Registry {
	return &Registry{
		store: st,
		opts:  opts.withDefaults(),
		rooms: make(map[int64]*Room),
	}
}

// Join registers the participant with the board's room, creating the room
// (and seeding its cache from a store snapshot) if it is not live. The
// participant receives the snapshot event on its own queue before any
// subsequent broadcast. Fails only on an invalid whiteboard id or a full
// room.
func (g *Registry) Join(ctx context.Context, whiteboardID int64, p *Participant) (*Room, error) {
	for {
		room, err := g.getOrCreate(ctx, whiteboardID)
		if err != nil {
			return nil, err
		}
		if err := room.join(p); err != nil {
			// The room can shut down between lookup and join if its last
			// participant left; retry against a fresh room.
			if errors.Is(err, ErrRoomClosed) {
				continue
			}
			return nil, err
		}
		return room, nil
	}
}

func (g *Registry) getOrCreate(ctx context.Context, whiteboardID int64) (*Room, error) {
	g.mu.Lock()
	if room, ok := g.rooms[whiteboardID]; ok {
		g.mu.Unlock()
		return room, nil
	}
	g.mu.Unlock()

	// Seed the cache outside the registry lock; snapshot reads may block on
	// the store and must not stall unrelated boards.
	elements, err := g.store.Snapshot(ctx, whiteboardID)
	if err != nil {
		if errors.Is(err, store.ErrBoardNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[whiteboardID]; ok {
		return room, nil
	}
	room := newRoom(whiteboardID, g.store, g, elements)
	g.rooms[whiteboardID] = room
	log.Printf("[Registry] created room for whiteboard %d", whiteboardID)
	return room, nil
}

// Submit routes a durable mutation to the board's room queue. The room must
// be live (some participant joined); mutations only ever originate from
// connected participants.
func (g *Registry) Submit(ctx context.Context, whiteboardID int64, m Mutation) (*model.DrawingElement, error) {
	g.mu.Lock()
	room, ok := g.rooms[whiteboardID]
	g.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.Submit(ctx, m)
}

// Leave deregisters the participant from the board's room, if it is live.
func (g *Registry) Leave(whiteboardID int64, p *Participant) {
	g.mu.Lock()
	room, ok := g.rooms[whiteboardID]
	g.mu.Unlock()
	if ok {
		room.leave(p)
	}
}

// evict removes an empty room from the table and stops its goroutines.
// Durable whiteboard data is unaffected.
func (g *Registry) evict(room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.rooms[room.ID]; ok && current == room && room.empty() {
		delete(g.rooms, room.ID)
		room.shutdown()
		log.Printf("[Registry] evicted room for whiteboard %d", room.ID)
	}
}

// RoomCount reports how many rooms are currently live.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
