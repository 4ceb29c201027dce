package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EmperorKunDis/Praut-App/internal/model"
)

// MemoryStore is a Store backed by process memory. The mutex gives the same
// atomic sequence assignment the Postgres row lock gives GormStore. Used by
// the engine tests and usable as a dev-mode store.
type MemoryStore struct {
	mu     sync.Mutex
	boards map[int64]*memBoard
}

type memBoard struct {
	lastSequence int64
	elements     map[string]*model.DrawingElement
	order        []string // element ids in sequence order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{boards: make(map[int64]*memBoard)}
}

// CreateBoard registers an empty board under the given id.
func (s *MemoryStore) CreateBoard(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[id]; !ok {
		s.boards[id] = &memBoard{elements: make(map[string]*model.DrawingElement)}
	}
}

func (s *MemoryStore) Append(ctx context.Context, el *model.DrawingElement) (*model.DrawingElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[el.WhiteboardID]
	if !ok {
		return nil, ErrBoardNotFound
	}

	board.lastSequence++
	now := time.Now()

	stored := *el
	stored.ID = uuid.NewString()
	stored.Sequence = board.lastSequence
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Points = append([]model.Point(nil), el.Points...)

	board.elements[stored.ID] = &stored
	board.order = append(board.order, stored.ID)

	out := stored
	return &out, nil
}

func (s *MemoryStore) Update(ctx context.Context, whiteboardID int64, id string, props model.ElementProps) (*model.DrawingElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[whiteboardID]
	if !ok {
		return nil, ErrBoardNotFound
	}
	el, ok := board.elements[id]
	if !ok {
		return nil, ErrElementNotFound
	}

	el.ElementProps = props
	el.Points = append([]model.Point(nil), props.Points...)
	el.UpdatedAt = time.Now()

	out := *el
	return &out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, whiteboardID int64, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[whiteboardID]
	if !ok {
		return false, ErrBoardNotFound
	}
	if _, ok := board.elements[id]; !ok {
		return false, nil
	}

	delete(board.elements, id)
	for i, eid := range board.order {
		if eid == id {
			board.order = append(board.order[:i], board.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, whiteboardID int64) ([]model.DrawingElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[whiteboardID]
	if !ok {
		return nil, ErrBoardNotFound
	}

	elements := make([]model.DrawingElement, 0, len(board.order))
	for _, id := range board.order {
		elements = append(elements, *board.elements[id])
	}
	return elements, nil
}
