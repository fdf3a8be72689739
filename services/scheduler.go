package services

import (
	"context"
	"log"
	"time"

	"github.com/AI-Wars-Soc/matchmaker/models"
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// StartStatsScheduler logs matchmaking throughput and pool sizes once a
// minute, so operators can tell a starved pool from a broken runner without
// grepping per-iteration logs.
func StartStatsScheduler(db *gorm.DB, selector *SelectorService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var recent int64
			since := time.Now().UTC().Add(-1 * time.Hour)
			if err := db.Model(&models.Match{}).
				Where("match_date >= ?", since).
				Count(&recent).Error; err != nil {
				log.Printf("[scheduler] DB error: %v", err)
				return
			}

			ctx := context.Background()
			untested, err := selector.UntestedEntrants(ctx)
			if err != nil {
				log.Printf("[scheduler] DB error: %v", err)
				return
			}
			pool, err := selector.LatestHealthyEntrants(ctx)
			if err != nil {
				log.Printf("[scheduler] DB error: %v", err)
				return
			}

			log.Printf("[scheduler] 📊 %d match(es) in the last hour, %d untested entrant(s), %d eligible entrant(s)",
				recent, len(untested), len(pool))
		}),
	)
}
