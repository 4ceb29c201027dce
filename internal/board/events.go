package board

import (
	"github.com/EmperorKunDis/Praut-App/internal/model"
)

// Outbound event types
const (
	EventSnapshot           = "snapshot"
	EventParticipantJoined  = "participant-joined"
	EventParticipantLeft    = "participant-left"
	EventElementProvisional = "element-provisional"
	EventElementCommitted   = "element-committed"
	EventElementUpdated     = "element-updated"
	EventElementDeleted     = "element-deleted"
	EventGestureCancelled   = "gesture-cancelled"
	EventError              = "error"
)

// Event is the wire envelope for every whiteboard socket message
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// SnapshotPayload is served to a joining participant: the full ordered
// element list plus the current participant set with colors.
type SnapshotPayload struct {
	WhiteboardID int64                  `json:"whiteboardId"`
	Elements     []model.DrawingElement `json:"elements"`
	Participants []PresenceInfo         `json:"participants"`
}

// ProvisionalPayload carries an in-progress draft. The element has no id or
// sequence; peers key their preview rendering on the participant id.
type ProvisionalPayload struct {
	ParticipantID int64                 `json:"participantId"`
	Element       *model.DrawingElement `json:"element"`
}

// DeletedPayload identifies a removed element
type DeletedPayload struct {
	ID string `json:"id"`
}

// CancelledPayload tells peers to drop a stale preview
type CancelledPayload struct {
	ParticipantID int64 `json:"participantId"`
}

// ErrorPayload is sent to the submitting participant only
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
