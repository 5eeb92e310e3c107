package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// memberID extracts the caller's member id from the X-Member-ID header
// set by the upstream gateway. Authentication itself happens before
// requests reach this service.
func memberID(c *fiber.Ctx) (uint64, error) {
	raw := c.Get("X-Member-ID")
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "missing X-Member-ID header")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid X-Member-ID header")
	}
	return id, nil
}

// validationErrors flattens validator output into the per-field shape
// of utils.ValidationErrorResponse.
func validationErrors(err error) []map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []map[string]string{{"message": err.Error()}}
	}
	out := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return out
}
