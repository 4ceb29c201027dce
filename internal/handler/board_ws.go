package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/EmperorKunDis/Praut-App/internal/board"
	"github.com/EmperorKunDis/Praut-App/internal/config"
	"github.com/EmperorKunDis/Praut-App/internal/model"
	"github.com/EmperorKunDis/Praut-App/internal/presence"
	"github.com/EmperorKunDis/Praut-App/internal/store"
)

const heartbeatInterval = 30 * time.Second

// Inbound message types
const (
	msgGestureStart  = "gesture-start"
	msgGestureUpdate = "gesture-update"
	msgGestureCommit = "gesture-commit"
	msgGestureCancel = "gesture-cancel"
	msgElementUpdate = "element-update"
	msgElementDelete = "element-delete"
	msgLeave         = "leave"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type gestureStartPayload struct {
	Type        model.ElementType `json:"type"`
	Point       model.Point       `json:"point"`
	Color       string            `json:"color"`
	StrokeWidth float64           `json:"strokeWidth"`
}

type gestureUpdatePayload struct {
	Point model.Point `json:"point"`
}

// gestureCommitPayload serves two shapes: a plain commit of the active
// gesture (optionally carrying one final point), and the text tool's
// one-shot commit, which never had a gesture-start.
type gestureCommitPayload struct {
	Point *model.Point `json:"point,omitempty"`

	Type        model.ElementType `json:"type,omitempty"`
	Start       *model.Point      `json:"start,omitempty"`
	Text        string            `json:"text,omitempty"`
	Color       string            `json:"color,omitempty"`
	StrokeWidth float64           `json:"strokeWidth,omitempty"`
}

type elementUpdatePayload struct {
	ID         string             `json:"id"`
	Properties model.ElementProps `json:"properties"`
}

type elementDeletePayload struct {
	ID string `json:"id"`
}

// BoardWSHandler runs the per-connection read loop for whiteboard sockets
type BoardWSHandler struct {
	registry *board.Registry
	presence *presence.Manager // nil when Redis is not configured
	cfg      *config.Config
}

func NewBoardWSHandler(registry *board.Registry, pm *presence.Manager, cfg *config.Config) *BoardWSHandler {
	return &BoardWSHandler{
		registry: registry,
		presence: pm,
		cfg:      cfg,
	}
}

// HandleWebSocket owns one participant connection from join to disconnect.
// The upgrade middleware already verified the token and the whiteboard, and
// stashed the identity in Locals.
func (h *BoardWSHandler) HandleWebSocket(c *websocket.Conn) {
	whiteboardID, _ := c.Locals("whiteboardID").(int64)
	userID, _ := c.Locals("userID").(int64)
	nickname, _ := c.Locals("nickname").(string)

	p := board.NewParticipant(userID, nickname, c, h.cfg.Board.SendBuffer)
	defer p.Close()

	room, err := h.registry.Join(context.Background(), whiteboardID, p)
	if err != nil {
		log.Printf("[BoardWS] join refused for user %d on board %d: %v", userID, whiteboardID, err)
		h.sendError(p, err)
		// give the writer a moment to flush the refusal before the close
		time.Sleep(100 * time.Millisecond)
		return
	}
	defer h.registry.Leave(whiteboardID, p)

	if h.presence != nil {
		h.trackPresence(whiteboardID, p)
		defer h.untrackPresence(whiteboardID, p)

		stopHeartbeat := make(chan struct{})
		defer close(stopHeartbeat)
		go h.heartbeatLoop(whiteboardID, userID, stopHeartbeat)
	}

	// The gesture is owned by this read loop alone. A connection that drops
	// mid-gesture discards the draft; peers learn via participant-left.
	gesture := board.NewGesture()

	handlers := map[string]func(json.RawMessage){
		msgGestureStart: func(raw json.RawMessage) {
			h.onGestureStart(room, p, gesture, whiteboardID, raw)
		},
		msgGestureUpdate: func(raw json.RawMessage) {
			h.onGestureUpdate(room, p, gesture, raw)
		},
		msgGestureCommit: func(raw json.RawMessage) {
			h.onGestureCommit(room, p, gesture, whiteboardID, raw)
		},
		msgGestureCancel: func(json.RawMessage) {
			if gesture.Cancel() {
				room.RelayGestureCancelled(p)
			}
		},
		msgElementUpdate: func(raw json.RawMessage) {
			h.onElementUpdate(room, p, raw)
		},
		msgElementDelete: func(raw json.RawMessage) {
			h.onElementDelete(room, p, raw)
		},
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[BoardWS] read error for user %d on board %d: %v", userID, whiteboardID, err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendErrorCode(p, "VALIDATION_ERROR", "malformed message", false)
			continue
		}

		if msg.Type == msgLeave {
			return
		}

		handle, ok := handlers[msg.Type]
		if !ok {
			h.sendErrorCode(p, "VALIDATION_ERROR", "unknown message type: "+msg.Type, false)
			continue
		}
		handle(msg.Payload)
	}
}

func (h *BoardWSHandler) onGestureStart(room *board.Room, p *board.Participant, g *board.Gesture, whiteboardID int64, raw json.RawMessage) {
	var payload gestureStartPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendErrorCode(p, "VALIDATION_ERROR", "malformed gesture-start payload", false)
		return
	}

	draft := g.Start(whiteboardID, p.ID, payload.Type, payload.Point, payload.Color, payload.StrokeWidth)
	room.RelayProvisional(p, draft)
}

func (h *BoardWSHandler) onGestureUpdate(room *board.Room, p *board.Participant, g *board.Gesture, raw json.RawMessage) {
	var payload gestureUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendErrorCode(p, "VALIDATION_ERROR", "malformed gesture-update payload", false)
		return
	}

	draft, err := g.Move(payload.Point)
	if err != nil {
		h.sendError(p, err)
		return
	}
	room.RelayProvisional(p, draft)
}

func (h *BoardWSHandler) onGestureCommit(room *board.Room, p *board.Participant, g *board.Gesture, whiteboardID int64, raw json.RawMessage) {
	var payload gestureCommitPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.sendErrorCode(p, "VALIDATION_ERROR", "malformed gesture-commit payload", false)
			return
		}
	}

	var (
		el  *model.DrawingElement
		err error
	)
	switch {
	case g.Active():
		if payload.Point != nil {
			if _, err := g.Move(*payload.Point); err != nil {
				h.sendError(p, err)
				return
			}
		}
		el, err = g.Commit()

	case payload.Type == model.ElementText:
		if payload.Start == nil {
			h.sendErrorCode(p, "VALIDATION_ERROR", "text commit requires a start point", false)
			return
		}
		el, err = board.OneShotText(whiteboardID, p.ID, *payload.Start, payload.Text, payload.Color, payload.StrokeWidth)

	default:
		h.sendError(p, board.ErrNoActiveGesture)
		return
	}
	if err != nil {
		h.sendError(p, err)
		return
	}

	h.submit(room, p, board.Mutation{
		Op:      board.MutationAppend,
		Element: el,
		Origin:  p,
	})
}

func (h *BoardWSHandler) onElementUpdate(room *board.Room, p *board.Participant, raw json.RawMessage) {
	var payload elementUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ID == "" {
		h.sendErrorCode(p, "VALIDATION_ERROR", "malformed element-update payload", false)
		return
	}

	h.submit(room, p, board.Mutation{
		Op:        board.MutationUpdate,
		ElementID: payload.ID,
		Props:     payload.Properties,
		Origin:    p,
	})
}

func (h *BoardWSHandler) onElementDelete(room *board.Room, p *board.Participant, raw json.RawMessage) {
	var payload elementDeletePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ID == "" {
		h.sendErrorCode(p, "VALIDATION_ERROR", "malformed element-delete payload", false)
		return
	}

	h.submit(room, p, board.Mutation{
		Op:        board.MutationDelete,
		ElementID: payload.ID,
		Origin:    p,
	})
}

// submit pushes one durable mutation through the room queue. On success the
// room broadcasts; here we only report failures back to the submitter.
func (h *BoardWSHandler) submit(room *board.Room, p *board.Participant, m board.Mutation) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := room.Submit(ctx, m); err != nil {
		h.sendError(p, err)
	}
}

func (h *BoardWSHandler) sendError(p *board.Participant, err error) {
	code, retryable := classifyError(err)
	h.sendErrorCode(p, code, err.Error(), retryable)
}

func (h *BoardWSHandler) sendErrorCode(p *board.Participant, code, message string, retryable bool) {
	p.SendEvent(board.Event{
		Type: board.EventError,
		Payload: board.ErrorPayload{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	})
}

func classifyError(err error) (code string, retryable bool) {
	switch {
	case errors.Is(err, model.ErrInvalidElement), errors.Is(err, board.ErrNoActiveGesture):
		return "VALIDATION_ERROR", false
	case errors.Is(err, store.ErrElementNotFound):
		return "NOT_FOUND", false
	case errors.Is(err, store.ErrBoardNotFound), errors.Is(err, board.ErrRoomNotFound):
		return "ROOM_NOT_FOUND", false
	case errors.Is(err, board.ErrCapacityExceeded):
		return "CAPACITY_EXCEEDED", false
	case errors.Is(err, board.ErrRoomClosed):
		return "ROOM_CLOSED", true
	default:
		return "PERSISTENCE_FAILURE", true
	}
}

func (h *BoardWSHandler) trackPresence(whiteboardID int64, p *board.Participant) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	entry := presence.Entry{
		UserID:       p.ID,
		Nickname:     p.Nickname,
		WhiteboardID: whiteboardID,
		Color:        p.Color,
	}
	if err := h.presence.SetPresence(ctx, entry); err != nil {
		log.Printf("[BoardWS] failed to record presence for user %d: %v", p.ID, err)
		return
	}
	if err := h.presence.Publish(ctx, entry, "join"); err != nil {
		log.Printf("[BoardWS] failed to publish join for user %d: %v", p.ID, err)
	}
}

func (h *BoardWSHandler) untrackPresence(whiteboardID int64, p *board.Participant) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := h.presence.Remove(ctx, whiteboardID, p.ID); err != nil {
		log.Printf("[BoardWS] failed to clear presence for user %d: %v", p.ID, err)
	}
	entry := presence.Entry{UserID: p.ID, Nickname: p.Nickname, WhiteboardID: whiteboardID}
	if err := h.presence.Publish(ctx, entry, "leave"); err != nil {
		log.Printf("[BoardWS] failed to publish leave for user %d: %v", p.ID, err)
	}
}

func (h *BoardWSHandler) heartbeatLoop(whiteboardID, userID int64, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := h.presence.Heartbeat(ctx, whiteboardID, userID)
			cancel()
			if err != nil {
				log.Printf("[BoardWS] heartbeat failed for user %d on board %d: %v", userID, whiteboardID, err)
			}
		}
	}
}
