package services

import (
	"testing"
	"time"

	"github.com/AI-Wars-Soc/matchmaker/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway in-memory database with the matchmaker schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // keep every query on the one in-memory connection

	require.NoError(t, db.AutoMigrate(&models.Entrant{}, &models.Match{}, &models.Result{}))
	return db
}

func createEntrant(t *testing.T, db *gorm.DB, userID string, active bool, submitted time.Time) models.Entrant {
	t.Helper()
	e := models.Entrant{
		ID:             uuid.NewString(),
		UserID:         userID,
		FilesHash:      uuid.NewString(),
		Active:         active,
		SubmissionDate: submitted,
	}
	require.NoError(t, db.Create(&e).Error)
	return e
}

// recordResult writes one single-player match result against the entrant.
func recordResult(t *testing.T, db *gorm.DB, entrant models.Entrant, outcome models.Outcome, healthy bool, delta float64) {
	t.Helper()
	m := models.Match{
		ID:        uuid.NewString(),
		MatchDate: time.Now().UTC(),
		Recording: "{}",
		Results: []models.Result{{
			ID:          uuid.NewString(),
			EntrantID:   entrant.ID,
			Outcome:     outcome,
			Healthy:     healthy,
			PointsDelta: delta,
		}},
	}
	m.Results[0].MatchID = m.ID
	require.NoError(t, db.Create(&m).Error)
}
