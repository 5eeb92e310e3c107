package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/config"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/services"
)

// HealthHandler exposes the service health report.
type HealthHandler struct {
	Cfg *config.Config
	DB  *gorm.DB
}

// Get runs the health check and reports 503 when unhealthy.
func (h *HealthHandler) Get(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Cfg, h.DB)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
