package handlers

import (
	"time"

	"github.com/AI-Wars-Soc/matchmaker/models"
	"github.com/AI-Wars-Soc/matchmaker/workers"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type workerStatus struct {
	Name        string `json:"name"`
	Iterations  int64  `json:"iterations"`
	Matches     int64  `json:"matches"`
	TestMatches int64  `json:"test_matches"`
	Skips       int64  `json:"skips"`
	Failures    int64  `json:"failures"`
	LastMatch   string `json:"last_match,omitempty"` // RFC3339, empty before the first match
}

// SetupStatusRoutes wires the liveness endpoints used by deployment probes.
// The matchmaker owns no other API: ratings and replays are read from the
// database by the web platform, not served here.
func SetupStatusRoutes(app *fiber.App, db *gorm.DB, matchmakers []*workers.Matchmaker) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		var totalMatches int64
		if err := db.Model(&models.Match{}).Count(&totalMatches).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
		}

		statuses := make([]workerStatus, 0, len(matchmakers))
		for _, m := range matchmakers {
			ws := workerStatus{
				Name:        m.Name,
				Iterations:  m.Stats.Iterations.Load(),
				Matches:     m.Stats.Matches.Load(),
				TestMatches: m.Stats.TestMatches.Load(),
				Skips:       m.Stats.Skips.Load(),
				Failures:    m.Stats.Failures.Load(),
			}
			if last := m.Stats.LastMatch.Load(); last > 0 {
				ws.LastMatch = time.Unix(last, 0).UTC().Format(time.RFC3339)
			}
			statuses = append(statuses, ws)
		}

		return c.JSON(fiber.Map{
			"total_matches": totalMatches,
			"workers":       statuses,
		})
	})
}
