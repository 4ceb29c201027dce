package model

import (
	"errors"
	"fmt"
	"time"
)

// ElementType identifies the drawing tool that produced an element
type ElementType string

const (
	ElementPencil    ElementType = "pencil"
	ElementLine      ElementType = "line"
	ElementRectangle ElementType = "rectangle"
	ElementCircle    ElementType = "circle"
	ElementText      ElementType = "text"
)

// ErrInvalidElement is wrapped by every geometry validation failure
var ErrInvalidElement = errors.New("invalid element")

// Point is a canvas coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ElementProps carries the mutable geometry and appearance of an element.
// Updates replace these wholesale (last writer wins); identity fields live
// on DrawingElement and never change.
type ElementProps struct {
	Points      []Point `json:"points,omitempty"` // pencil only
	Start       *Point  `json:"start,omitempty"`  // shapes and text
	End         *Point  `json:"end,omitempty"`    // shapes only
	Text        string  `json:"text,omitempty"`   // text only
	Color       string  `json:"color,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
}

// DrawingElement is the canonical record of one drawn shape or stroke.
// ID and Sequence are zero until the first durable write assigns them.
type DrawingElement struct {
	ID           string      `json:"id,omitempty"`
	WhiteboardID int64       `json:"whiteboardId"`
	Type         ElementType `json:"type"`
	ElementProps
	CreatorID int64     `json:"creatorId"`
	Sequence  int64     `json:"sequence,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate rejects an element whose geometry is incomplete for its type.
func (e *DrawingElement) Validate() error {
	switch e.Type {
	case ElementPencil:
		if len(e.Points) < 1 {
			return fmt.Errorf("%w: pencil stroke requires at least one point", ErrInvalidElement)
		}
	case ElementLine, ElementRectangle, ElementCircle:
		if e.Start == nil || e.End == nil {
			return fmt.Errorf("%w: %s requires start and end points", ErrInvalidElement, e.Type)
		}
	case ElementText:
		if e.Start == nil {
			return fmt.Errorf("%w: text requires a start point", ErrInvalidElement)
		}
		if e.Text == "" {
			return fmt.Errorf("%w: text content is empty", ErrInvalidElement)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidElement, e.Type)
	}
	return nil
}
