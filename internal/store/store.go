// Package store is the persistence writer for whiteboard elements. It owns
// the two things the rest of the engine must never do itself: issuing
// globally unique element ids and issuing gap-free per-board sequence
// numbers at commit time.
package store

import (
	"context"
	"errors"

	"github.com/EmperorKunDis/Praut-App/internal/model"
)

var (
	// ErrBoardNotFound means the whiteboard id does not exist
	ErrBoardNotFound = errors.New("whiteboard not found")
	// ErrElementNotFound means an update referenced an unknown element id
	ErrElementNotFound = errors.New("element not found")
)

// Store is the durable element store. Append must be atomic with respect to
// sequence assignment: a concurrent Snapshot never observes a gap. Delete is
// idempotent and reports whether a row was actually removed so callers can
// suppress duplicate broadcasts.
type Store interface {
	Append(ctx context.Context, el *model.DrawingElement) (*model.DrawingElement, error)
	Update(ctx context.Context, whiteboardID int64, id string, props model.ElementProps) (*model.DrawingElement, error)
	Delete(ctx context.Context, whiteboardID int64, id string) (bool, error)
	Snapshot(ctx context.Context, whiteboardID int64) ([]model.DrawingElement, error)
}
