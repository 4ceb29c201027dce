package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/EmperorKunDis/Praut-App/internal/model"
	"github.com/EmperorKunDis/Praut-App/internal/store"
)

// WhiteboardHandler serves the REST surface for board management. The live
// drawing path is entirely on the socket; these endpoints exist for board
// setup and for clients that want the element list without connecting.
type WhiteboardHandler struct {
	db    *gorm.DB
	store store.Store
}

func NewWhiteboardHandler(db *gorm.DB, st store.Store) *WhiteboardHandler {
	return &WhiteboardHandler{db: db, store: st}
}

type createWhiteboardRequest struct {
	Name            string `json:"name"`
	CompanyID       int64  `json:"companyId"`
	BackgroundColor string `json:"backgroundColor"`
	CanvasWidth     int    `json:"canvasWidth"`
	CanvasHeight    int    `json:"canvasHeight"`
}

// CreateWhiteboard handles POST /api/whiteboards
func (h *WhiteboardHandler) CreateWhiteboard(c *fiber.Ctx) error {
	var req createWhiteboardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}
	if req.CompanyID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "companyId is required",
		})
	}

	userID, _ := c.Locals("userID").(int64)

	wb := model.Whiteboard{
		Name:            req.Name,
		CompanyID:       req.CompanyID,
		CreatedBy:       userID,
		BackgroundColor: req.BackgroundColor,
		CanvasWidth:     req.CanvasWidth,
		CanvasHeight:    req.CanvasHeight,
	}
	if wb.BackgroundColor == "" {
		wb.BackgroundColor = "#FFFFFF"
	}
	if wb.CanvasWidth <= 0 {
		wb.CanvasWidth = 1920
	}
	if wb.CanvasHeight <= 0 {
		wb.CanvasHeight = 1080
	}

	if err := h.db.WithContext(c.Context()).Create(&wb).Error; err != nil {
		log.Printf("[Whiteboard] failed to create board: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create whiteboard",
		})
	}

	log.Printf("[Whiteboard] board %d created by user %d", wb.ID, userID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"whiteboard": wb,
	})
}

// ListWhiteboards handles GET /api/whiteboards?companyId=N
func (h *WhiteboardHandler) ListWhiteboards(c *fiber.Ctx) error {
	companyID := c.QueryInt("companyId")
	if companyID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "companyId query parameter is required",
		})
	}

	var boards []model.Whiteboard
	err := h.db.WithContext(c.Context()).
		Where("company_id = ?", companyID).
		Order("id ASC").
		Find(&boards).Error
	if err != nil {
		log.Printf("[Whiteboard] failed to list boards for company %d: %v", companyID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list whiteboards",
		})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"whiteboards": boards,
	})
}

// GetWhiteboard handles GET /api/whiteboards/:id
func (h *WhiteboardHandler) GetWhiteboard(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid whiteboard id",
		})
	}

	var wb model.Whiteboard
	if err := h.db.WithContext(c.Context()).First(&wb, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "whiteboard not found",
			})
		}
		log.Printf("[Whiteboard] failed to load board %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load whiteboard",
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"whiteboard": wb,
	})
}

// GetElements handles GET /api/whiteboards/:id/elements. It returns the
// committed elements in sequence order, the same list a socket snapshot
// would carry.
func (h *WhiteboardHandler) GetElements(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid whiteboard id",
		})
	}

	elements, err := h.store.Snapshot(c.Context(), int64(id))
	if err != nil {
		if errors.Is(err, store.ErrBoardNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "whiteboard not found",
			})
		}
		log.Printf("[Whiteboard] failed to load elements for board %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load elements",
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"elements": elements,
	})
}
