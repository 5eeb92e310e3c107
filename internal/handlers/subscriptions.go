package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/utils"
)

// SubscriptionHandler manages a member's web-push subscriptions.
type SubscriptionHandler struct {
	DB       *gorm.DB
	Validate *validator.Validate
}

// subscriptionKeys mirrors the PushSubscription JSON a browser produces.
type subscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

type subscribeRequest struct {
	Endpoint string           `json:"endpoint" validate:"required,url"`
	Keys     subscriptionKeys `json:"keys" validate:"required"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
}

// Register stores a push subscription for the calling member.
// Re-registering an existing endpoint reassigns it, which covers a
// browser profile handed to a different account.
func (h *SubscriptionHandler) Register(c *fiber.Ctx) error {
	id, err := memberID(c)
	if err != nil {
		return err
	}

	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "parse")
	}
	if err := h.Validate.Struct(&req); err != nil {
		return utils.ValidationErrorResponse(c, validationErrors(err))
	}

	sub := models.PushSubscription{
		MemberID: id,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
		Active:   true,
	}
	err = h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"member_id", "p256dh", "auth", "active"}),
	}).Create(&sub).Error
	if err != nil {
		return utils.ErrorResponse(c, "failed to store subscription", fiber.StatusInternalServerError, "database")
	}

	return utils.SuccessResponse(c, fiber.Map{"ok": true}, fiber.StatusCreated)
}

// Unregister removes the calling member's subscription by endpoint.
func (h *SubscriptionHandler) Unregister(c *fiber.Ctx) error {
	id, err := memberID(c)
	if err != nil {
		return err
	}

	var req unsubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "parse")
	}
	if err := h.Validate.Struct(&req); err != nil {
		return utils.ValidationErrorResponse(c, validationErrors(err))
	}

	res := h.DB.Where("member_id = ? AND endpoint = ?", id, req.Endpoint).
		Delete(&models.PushSubscription{})
	if res.Error != nil {
		return utils.ErrorResponse(c, "failed to remove subscription", fiber.StatusInternalServerError, "database")
	}
	if res.RowsAffected == 0 {
		return utils.NotFoundResponse(c, "subscription not found")
	}

	return utils.SuccessResponse(c, fiber.Map{"ok": true}, fiber.StatusOK)
}
