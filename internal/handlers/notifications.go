package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/utils"
)

// NotificationHandler serves a member's persisted notifications.
type NotificationHandler struct {
	DB *gorm.DB
}

// List returns the calling member's notifications, newest first.
// Supports a `limit` query parameter (default 50, max 200).
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	id, err := memberID(c)
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var notifications []models.Notification
	if err := h.DB.Where("recipient_id = ?", id).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return utils.ErrorResponse(c, "failed to list notifications", fiber.StatusInternalServerError, "database")
	}

	return utils.SuccessResponse(c, fiber.Map{"notifications": notifications}, fiber.StatusOK)
}

// MarkRead flags one of the calling member's notifications as read.
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := memberID(c)
	if err != nil {
		return err
	}

	notificationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, "invalid notification id", fiber.StatusBadRequest, "parse")
	}

	res := h.DB.Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, id).
		Update("read", true)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, "failed to mark notification read", fiber.StatusInternalServerError, "database")
	}
	if res.RowsAffected == 0 {
		return utils.NotFoundResponse(c, "notification not found")
	}

	return utils.SuccessResponse(c, fiber.Map{"ok": true}, fiber.StatusOK)
}
