package model

import (
	"time"
)

// Whiteboard is the durable board record. LastSequence is the single point
// of sequence issuance for the board: it is only read and bumped inside the
// element-append transaction, under a row lock.
type Whiteboard struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	CompanyID       int64     `gorm:"not null;index" json:"company_id"`
	CreatedBy       int64     `gorm:"not null" json:"created_by"`
	BackgroundColor string    `gorm:"size:7;default:#FFFFFF" json:"background_color"`
	CanvasWidth     int       `gorm:"default:1920" json:"canvas_width"`
	CanvasHeight    int       `gorm:"default:1080" json:"canvas_height"`
	LastSequence    int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Whiteboard) TableName() string {
	return "whiteboards"
}

// WhiteboardElement is the stored form of a committed DrawingElement.
// Properties holds the ElementProps JSON. (whiteboard_id, sequence) is
// unique so a sequence value can never be reused within one board.
type WhiteboardElement struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	WhiteboardID int64     `gorm:"not null;index;uniqueIndex:uniq_board_sequence" json:"whiteboard_id"`
	Sequence     int64     `gorm:"not null;uniqueIndex:uniq_board_sequence" json:"sequence"`
	Type         string    `gorm:"size:50;not null" json:"type"`
	Properties   string    `gorm:"type:jsonb;not null" json:"properties"`
	CreatedBy    int64     `gorm:"not null" json:"created_by"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Whiteboard Whiteboard `gorm:"foreignKey:WhiteboardID" json:"whiteboard,omitempty"`
}

func (WhiteboardElement) TableName() string {
	return "whiteboard_elements"
}
