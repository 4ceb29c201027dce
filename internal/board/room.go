package board

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/EmperorKunDis/Praut-App/internal/model"
	"github.com/EmperorKunDis/Praut-App/internal/store"
)

// MutationOp is the kind of durable change submitted to a room
type MutationOp int

const (
	MutationAppend MutationOp = iota
	MutationUpdate
	MutationDelete
)

// Mutation is one durable create/update/delete of a DrawingElement.
// Element carries the draft for appends; ElementID and Props target an
// existing element for updates and deletes. Origin, when set, is excluded
// from the resulting broadcast where the event calls for it.
type Mutation struct {
	Op        MutationOp
	Element   *model.DrawingElement
	ElementID string
	Props     model.ElementProps
	Origin    *Participant
}

type mutationResult struct {
	element *model.DrawingElement
	err     error
}

type mutationRequest struct {
	m     Mutation
	reply chan mutationResult
}

// envelope captures its recipient set at enqueue time, so a participant who
// joins afterwards (with a snapshot that already contains the change) never
// receives the same change twice.
type envelope struct {
	data       []byte
	recipients []*Participant
}

// Room is the runtime aggregate for one whiteboard: the connected
// participants, the ordered element cache, and the serialized mutation
// queue. All durable mutations for the board flow through runMutations
// one at a time, in arrival order; nothing else touches the board's
// persisted state. The cache is written only by that loop and read by
// joins under the lock.
type Room struct {
	ID int64

	store    store.Store
	registry *Registry

	mu           sync.RWMutex
	participants []*Participant
	elements     []model.DrawingElement

	mutations chan *mutationRequest
	outbound  chan envelope

	ctx    context.Context
	cancel context.CancelFunc
}

func newRoom(id int64, st store.Store, reg *Registry, elements []model.DrawingElement) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		ID:        id,
		store:     st,
		registry:  reg,
		elements:  elements,
		mutations: make(chan *mutationRequest, reg.opts.MutationQueue),
		outbound:  make(chan envelope, reg.opts.BroadcastQueue),
		ctx:       ctx,
		cancel:    cancel,
	}
	go r.runMutations()
	go r.runBroadcaster()
	return r
}

// join registers the participant, assigns a display color and delivers the
// snapshot. The snapshot is enqueued on the participant's own ordered queue
// while the room lock is held, so every broadcast enqueued afterwards
// arrives after it.
func (r *Room) join(p *Participant) error {
	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	if len(r.participants) >= r.registry.opts.MaxParticipants {
		r.mu.Unlock()
		return ErrCapacityExceeded
	}

	colors := make([]string, 0, len(r.participants))
	for _, existing := range r.participants {
		colors = append(colors, existing.Color)
	}
	p.Color = nextColor(colors)
	r.participants = append(r.participants, p)

	snapshot := Event{
		Type: EventSnapshot,
		Payload: SnapshotPayload{
			WhiteboardID: r.ID,
			Elements:     append([]model.DrawingElement(nil), r.elements...),
			Participants: r.presenceLocked(),
		},
	}
	if data, err := json.Marshal(snapshot); err == nil {
		p.send(data)
	} else {
		log.Printf("[Room %d] failed to marshal snapshot: %v", r.ID, err)
	}

	joined := r.envelopeLocked(EventParticipantJoined, PresenceInfo{
		UserID:   p.ID,
		Nickname: p.Nickname,
		Color:    p.Color,
	}, p)
	count := len(r.participants)
	r.mu.Unlock()

	r.enqueue(joined)
	log.Printf("[Room %d] participant %d joined, total: %d", r.ID, p.ID, count)
	return nil
}

// leave deregisters the participant and, if the room is now empty, asks the
// registry to evict it. Durable data is unaffected.
func (r *Room) leave(p *Participant) {
	r.mu.Lock()
	idx := -1
	for i, existing := range r.participants {
		if existing == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	r.participants = append(r.participants[:idx], r.participants[idx+1:]...)
	empty := len(r.participants) == 0

	left := r.envelopeLocked(EventParticipantLeft, PresenceInfo{
		UserID:   p.ID,
		Nickname: p.Nickname,
		Color:    p.Color,
	}, nil)
	r.mu.Unlock()

	r.enqueue(left)
	log.Printf("[Room %d] participant %d left", r.ID, p.ID)

	if empty {
		r.registry.evict(r)
	}
}

// Participants returns the current presence list in join order.
func (r *Room) Participants() []PresenceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presenceLocked()
}

func (r *Room) presenceLocked() []PresenceInfo {
	infos := make([]PresenceInfo, 0, len(r.participants))
	for _, p := range r.participants {
		infos = append(infos, PresenceInfo{UserID: p.ID, Nickname: p.Nickname, Color: p.Color})
	}
	return infos
}

// Submit enqueues a durable mutation and blocks until it is applied (or
// fails). Once queued the mutation is not cancellable: it completes or
// fails in the store, never partially. A context error here only abandons
// the wait.
func (r *Room) Submit(ctx context.Context, m Mutation) (*model.DrawingElement, error) {
	req := &mutationRequest{m: m, reply: make(chan mutationResult, 1)}

	select {
	case r.mutations <- req:
	case <-r.ctx.Done():
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.element, res.err
	case <-r.ctx.Done():
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RelayProvisional fans a non-durable draft out to everyone except the
// originator. It bypasses the mutation queue and persistence entirely.
func (r *Room) RelayProvisional(origin *Participant, draft *model.DrawingElement) {
	r.mu.RLock()
	env := r.envelopeLocked(EventElementProvisional, ProvisionalPayload{
		ParticipantID: origin.ID,
		Element:       draft,
	}, origin)
	r.mu.RUnlock()
	r.enqueue(env)
}

// RelayGestureCancelled tells peers to drop the originator's stale preview.
func (r *Room) RelayGestureCancelled(origin *Participant) {
	r.mu.RLock()
	env := r.envelopeLocked(EventGestureCancelled, CancelledPayload{ParticipantID: origin.ID}, origin)
	r.mu.RUnlock()
	r.enqueue(env)
}

func (r *Room) runMutations() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case req := <-r.mutations:
			r.apply(req)
		}
	}
}

// apply executes one durable mutation: store write, cache update and
// broadcast capture happen before the submitter is unblocked, so no
// partial state is ever visible to other participants.
func (r *Room) apply(req *mutationRequest) {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()

	var (
		el        *model.DrawingElement
		err       error
		broadcast bool
	)

	switch req.m.Op {
	case MutationAppend:
		el, err = r.store.Append(ctx, req.m.Element)
		broadcast = err == nil

	case MutationUpdate:
		el, err = r.applyUpdate(ctx, req)
		broadcast = err == nil

	case MutationDelete:
		broadcast, err = r.store.Delete(ctx, r.ID, req.m.ElementID)
	}

	if err != nil {
		req.reply <- mutationResult{err: err}
		return
	}

	var env envelope
	r.mu.Lock()
	switch req.m.Op {
	case MutationAppend:
		r.elements = append(r.elements, *el)
		env = r.envelopeLocked(EventElementCommitted, el, nil)
	case MutationUpdate:
		if i := r.findLocked(el.ID); i >= 0 {
			r.elements[i] = *el
		}
		env = r.envelopeLocked(EventElementUpdated, el, req.m.Origin)
	case MutationDelete:
		if broadcast {
			if i := r.findLocked(req.m.ElementID); i >= 0 {
				r.elements = append(r.elements[:i], r.elements[i+1:]...)
			}
			env = r.envelopeLocked(EventElementDeleted, DeletedPayload{ID: req.m.ElementID}, nil)
		}
	}
	r.mu.Unlock()

	req.reply <- mutationResult{element: el}
	if broadcast {
		r.enqueue(env)
	}
}

// applyUpdate validates the replacement properties against the cached
// element's type before touching the store, so a malformed update never
// partially applies.
func (r *Room) applyUpdate(ctx context.Context, req *mutationRequest) (*model.DrawingElement, error) {
	r.mu.RLock()
	i := r.findLocked(req.m.ElementID)
	var existing model.DrawingElement
	if i >= 0 {
		existing = r.elements[i]
	}
	r.mu.RUnlock()

	if i < 0 {
		return nil, store.ErrElementNotFound
	}

	candidate := existing
	candidate.ElementProps = req.m.Props
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	return r.store.Update(ctx, r.ID, req.m.ElementID, req.m.Props)
}

func (r *Room) findLocked(id string) int {
	for i := range r.elements {
		if r.elements[i].ID == id {
			return i
		}
	}
	return -1
}

// envelopeLocked marshals an event and captures the recipient set. Caller
// holds r.mu (read or write).
func (r *Room) envelopeLocked(eventType string, payload interface{}, exclude *Participant) envelope {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("[Room %d] failed to marshal %s event: %v", r.ID, eventType, err)
		return envelope{}
	}
	recipients := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		if p == exclude {
			continue
		}
		recipients = append(recipients, p)
	}
	return envelope{data: data, recipients: recipients}
}

func (r *Room) enqueue(env envelope) {
	if env.data == nil || len(env.recipients) == 0 {
		return
	}
	select {
	case r.outbound <- env:
	case <-r.ctx.Done():
	default:
		log.Printf("[Room %d] broadcast buffer full, dropping event", r.ID)
	}
}

func (r *Room) runBroadcaster() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case env := <-r.outbound:
			for _, p := range env.recipients {
				p.send(env.data)
			}
		}
	}
}

func (r *Room) empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants) == 0
}

func (r *Room) shutdown() {
	r.cancel()
	log.Printf("[Room %d] shutdown complete", r.ID)
}

// IsPersistenceError reports whether a submit failure came from the durable
// store rather than from validation or a missing element; such failures are
// retryable by the submitter.
func IsPersistenceError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, store.ErrElementNotFound) &&
		!errors.Is(err, store.ErrBoardNotFound) &&
		!errors.Is(err, model.ErrInvalidElement)
}
