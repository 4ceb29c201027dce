package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EmperorKunDis/Praut-App/internal/model"
)

// GormStore persists elements in Postgres. Sequence numbers come from the
// whiteboards.last_sequence column, read and bumped under SELECT ... FOR
// UPDATE inside the same transaction as the element insert, so concurrent
// writers (including other processes) can never collide or leave a gap.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Append assigns the next sequence and a fresh id, stores the element
// durably and returns the stored form.
func (s *GormStore) Append(ctx context.Context, el *model.DrawingElement) (*model.DrawingElement, error) {
	stored := *el

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var board model.Whiteboard
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&board, el.WhiteboardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBoardNotFound
			}
			return err
		}

		seq := board.LastSequence + 1
		if err := tx.Model(&model.Whiteboard{}).
			Where("id = ?", board.ID).
			Update("last_sequence", seq).Error; err != nil {
			return err
		}

		props, err := json.Marshal(el.ElementProps)
		if err != nil {
			return fmt.Errorf("marshal element properties: %w", err)
		}

		row := model.WhiteboardElement{
			ID:           uuid.NewString(),
			WhiteboardID: el.WhiteboardID,
			Sequence:     seq,
			Type:         string(el.Type),
			Properties:   string(props),
			CreatedBy:    el.CreatorID,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		stored.ID = row.ID
		stored.Sequence = row.Sequence
		stored.CreatedAt = row.CreatedAt
		stored.UpdatedAt = row.UpdatedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Update overwrites the element's properties in place (last writer wins),
// bumps updated_at and leaves id/sequence untouched.
func (s *GormStore) Update(ctx context.Context, whiteboardID int64, id string, props model.ElementProps) (*model.DrawingElement, error) {
	var updated *model.DrawingElement

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.WhiteboardElement
		if err := tx.Where("id = ? AND whiteboard_id = ?", id, whiteboardID).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrElementNotFound
			}
			return err
		}

		data, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("marshal element properties: %w", err)
		}
		row.Properties = string(data)
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		el, err := rowToElement(&row)
		if err != nil {
			return err
		}
		updated = el
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the element. Deleting an unknown id is not an error; the
// bool reports whether a row was removed.
func (s *GormStore) Delete(ctx context.Context, whiteboardID int64, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND whiteboard_id = ?", id, whiteboardID).
		Delete(&model.WhiteboardElement{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Snapshot returns all current elements of the board in sequence order.
func (s *GormStore) Snapshot(ctx context.Context, whiteboardID int64) ([]model.DrawingElement, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Whiteboard{}).
		Where("id = ?", whiteboardID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrBoardNotFound
	}

	var rows []model.WhiteboardElement
	if err := s.db.WithContext(ctx).
		Where("whiteboard_id = ?", whiteboardID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	elements := make([]model.DrawingElement, 0, len(rows))
	for i := range rows {
		el, err := rowToElement(&rows[i])
		if err != nil {
			return nil, err
		}
		elements = append(elements, *el)
	}
	return elements, nil
}

func rowToElement(row *model.WhiteboardElement) (*model.DrawingElement, error) {
	var props model.ElementProps
	if err := json.Unmarshal([]byte(row.Properties), &props); err != nil {
		return nil, fmt.Errorf("element %s has corrupt properties: %w", row.ID, err)
	}
	return &model.DrawingElement{
		ID:           row.ID,
		WhiteboardID: row.WhiteboardID,
		Type:         model.ElementType(row.Type),
		ElementProps: props,
		CreatorID:    row.CreatedBy,
		Sequence:     row.Sequence,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}
