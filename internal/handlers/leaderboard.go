package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/BrunoFurlanetto/xpump-sub001/internal/leaderboard"
	"github.com/BrunoFurlanetto/xpump-sub001/internal/utils"
)

// LeaderboardHandler serves the stored leaderboard snapshots.
type LeaderboardHandler struct {
	DB *gorm.DB
}

// Get returns the current snapshot for a group. The `period` query
// parameter selects WEEK (default) or MONTH.
func (h *LeaderboardHandler) Get(c *fiber.Ctx) error {
	groupID, err := strconv.ParseUint(c.Params("groupId"), 10, 64)
	if err != nil || groupID == 0 {
		return utils.ErrorResponse(c, "invalid group id", fiber.StatusBadRequest, "parse")
	}

	period := leaderboard.Period(c.Query("period", string(leaderboard.PeriodWeek)))

	snap, err := leaderboard.LoadSnapshot(c.Context(), h.DB, groupID, period)
	if errors.Is(err, leaderboard.ErrInvalidPeriod) {
		return utils.ErrorResponse(c, "period must be WEEK or MONTH", fiber.StatusBadRequest, "validation")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NotFoundResponse(c, "no leaderboard computed for this group yet")
	}
	if err != nil {
		return utils.ErrorResponse(c, "failed to load leaderboard", fiber.StatusInternalServerError, "database")
	}

	entries := make([]fiber.Map, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		entries = append(entries, fiber.Map{
			"memberId":      e.MemberID,
			"position":      e.Position,
			"score":         e.Score,
			"workoutsCount": e.WorkoutsCount,
			"mealsCount":    e.MealsCount,
		})
	}

	return utils.SuccessResponse(c, fiber.Map{
		"groupId":     snap.GroupID,
		"period":      snap.Period,
		"windowStart": snap.WindowStart,
		"computedAt":  snap.ComputedAt,
		"entries":     entries,
	}, fiber.StatusOK)
}
