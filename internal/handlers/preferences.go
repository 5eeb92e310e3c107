package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/models"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/utils"
)

// PreferenceHandler reads and updates per-category notification
// preferences. Members without stored rows get default-allow; a row is
// only written on an explicit update.
type PreferenceHandler struct {
	DB       *gorm.DB
	Validate *validator.Validate
}

type preferenceUpdate struct {
	Enabled   *bool `json:"enabled" validate:"required"`
	Persisted *bool `json:"persisted"`
	Realtime  *bool `json:"realtime"`
	Push      *bool `json:"push"`
}

// List returns the calling member's stored preference rows.
func (h *PreferenceHandler) List(c *fiber.Ctx) error {
	id, err := memberID(c)
	if err != nil {
		return err
	}

	var prefs []models.NotificationPreference
	if err := h.DB.Where("member_id = ?", id).Find(&prefs).Error; err != nil {
		return utils.ErrorResponse(c, "failed to list preferences", fiber.StatusInternalServerError, "database")
	}

	return utils.SuccessResponse(c, fiber.Map{"preferences": prefs}, fiber.StatusOK)
}

// Update upserts the preference row for one category. Omitted channel
// flags default to allowed.
func (h *PreferenceHandler) Update(c *fiber.Ctx) error {
	id, err := memberID(c)
	if err != nil {
		return err
	}
	category := c.Params("category")
	if category == "" {
		return utils.ErrorResponse(c, "category is required", fiber.StatusBadRequest, "validation")
	}

	var req preferenceUpdate
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "parse")
	}
	if err := h.Validate.Struct(&req); err != nil {
		return utils.ValidationErrorResponse(c, validationErrors(err))
	}

	boolOr := func(v *bool, def bool) bool {
		if v == nil {
			return def
		}
		return *v
	}

	pref := models.NotificationPreference{
		MemberID:  id,
		Category:  category,
		Enabled:   *req.Enabled,
		Persisted: boolOr(req.Persisted, true),
		Realtime:  boolOr(req.Realtime, true),
		Push:      boolOr(req.Push, true),
	}
	err = h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "persisted", "realtime", "push", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return utils.ErrorResponse(c, "failed to store preference", fiber.StatusInternalServerError, "database")
	}

	return utils.SuccessResponse(c, fiber.Map{"ok": true}, fiber.StatusOK)
}
