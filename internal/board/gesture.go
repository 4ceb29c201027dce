package board

import (
	"github.com/EmperorKunDis/Praut-App/internal/model"
)

// GestureState is the connection-local drawing state
type GestureState int

const (
	GestureIdle GestureState = iota
	GestureDrawing
)

// Gesture tracks one connection's in-progress drawing action from press to
// commit or cancel. It is owned exclusively by the originating connection's
// read loop and is never shared, so it needs no locking. The draft carries
// no id or sequence; those are assigned by the store at commit.
type Gesture struct {
	state GestureState
	draft *model.DrawingElement
}

func NewGesture() *Gesture {
	return &Gesture{state: GestureIdle}
}

func (g *Gesture) Active() bool {
	return g.state == GestureDrawing
}

// Start begins a new gesture from a press event and returns the draft for
// provisional relay. Starting while a gesture is in progress is a tool
// switch: the previous draft is discarded.
func (g *Gesture) Start(whiteboardID, creatorID int64, typ model.ElementType, press model.Point, color string, strokeWidth float64) *model.DrawingElement {
	draft := &model.DrawingElement{
		WhiteboardID: whiteboardID,
		Type:         typ,
		CreatorID:    creatorID,
		ElementProps: model.ElementProps{
			Color:       color,
			StrokeWidth: strokeWidth,
		},
	}

	start := press
	switch typ {
	case model.ElementPencil:
		draft.Points = []model.Point{press}
	default:
		end := press
		draft.Start = &start
		draft.End = &end
	}

	g.state = GestureDrawing
	g.draft = draft
	return draft
}

// Move extends the draft geometry from a pointer-move event: pencil strokes
// append the point, shapes track it as the new end point.
func (g *Gesture) Move(p model.Point) (*model.DrawingElement, error) {
	if g.state != GestureDrawing {
		return nil, ErrNoActiveGesture
	}

	switch g.draft.Type {
	case model.ElementPencil:
		g.draft.Points = append(g.draft.Points, p)
	default:
		end := p
		g.draft.End = &end
	}
	return g.draft, nil
}

// Commit finalizes the draft for durable submission and returns the gesture
// to idle. An invalid draft is rejected here, before it can reach the
// mutation queue.
func (g *Gesture) Commit() (*model.DrawingElement, error) {
	if g.state != GestureDrawing {
		return nil, ErrNoActiveGesture
	}

	draft := g.draft
	g.state = GestureIdle
	g.draft = nil

	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return draft, nil
}

// Cancel discards the draft with no network effect. Reports whether a draft
// was actually in progress.
func (g *Gesture) Cancel() bool {
	if g.state != GestureDrawing {
		return false
	}
	g.state = GestureIdle
	g.draft = nil
	return true
}

// OneShotText builds the text tool's already-complete element: it skips the
// move loop entirely and goes straight to commit.
func OneShotText(whiteboardID, creatorID int64, at model.Point, text, color string, strokeWidth float64) (*model.DrawingElement, error) {
	start := at
	el := &model.DrawingElement{
		WhiteboardID: whiteboardID,
		Type:         model.ElementText,
		CreatorID:    creatorID,
		ElementProps: model.ElementProps{
			Start:       &start,
			Text:        text,
			Color:       color,
			StrokeWidth: strokeWidth,
		},
	}
	if err := el.Validate(); err != nil {
		return nil, err
	}
	return el, nil
}
