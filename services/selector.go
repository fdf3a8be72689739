package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/AI-Wars-Soc/matchmaker/models"
	"gorm.io/gorm"
)

// SelectorService answers the two candidate queries behind matchmaking:
// entrants that have never been run at all, and the newest healthy entrant
// per user. Both are read-only.
type SelectorService struct {
	DB *gorm.DB
}

func NewSelectorService(db *gorm.DB) *SelectorService {
	return &SelectorService{DB: db}
}

// EntrantHealth pairs an entrant with its healthy-result ratio in (0, 1].
type EntrantHealth struct {
	Entrant models.Entrant
	Health  float64
}

// UntestedEntrants returns every entrant with no results at all. These get
// priority: a fresh submission is self-tested before it is risked in a rated
// match.
func (s *SelectorService) UntestedEntrants(ctx context.Context) ([]models.Entrant, error) {
	var entrants []models.Entrant
	err := s.DB.WithContext(ctx).
		Select("entrants.*").
		Joins("LEFT JOIN results ON results.entrant_id = entrants.id").
		Where("results.id IS NULL").
		Find(&entrants).Error
	if err != nil {
		return nil, fmt.Errorf("querying untested entrants: %w", err)
	}
	return entrants, nil
}

// Per user: the most recently submitted active entrant, restricted to
// entrants with at least one healthy result. Entrants whose every run failed
// never make it past the healthy join, so health is always > 0 here.
const latestHealthyQuery = `
SELECT e.id AS id, e.user_id AS user_id, e.files_hash AS files_hash,
       e.active AS active, e.submission_date AS submission_date,
       h.healthies AS healthies, t.total AS total
FROM entrants e
JOIN (
	SELECT r.entrant_id AS entrant_id, COUNT(r.id) AS healthies
	FROM results r WHERE r.healthy = ? GROUP BY r.entrant_id
) h ON h.entrant_id = e.id
JOIN (
	SELECT r.entrant_id AS entrant_id, COUNT(r.id) AS total
	FROM results r GROUP BY r.entrant_id
) t ON t.entrant_id = e.id
JOIN (
	SELECT e2.user_id AS user_id, MAX(e2.submission_date) AS maxdate
	FROM entrants e2
	JOIN (
		SELECT r.entrant_id AS entrant_id
		FROM results r WHERE r.healthy = ? GROUP BY r.entrant_id
	) h2 ON h2.entrant_id = e2.id
	WHERE e2.active = ?
	GROUP BY e2.user_id
) m ON m.user_id = e.user_id AND e.submission_date = m.maxdate
WHERE e.active = ?`

// LatestHealthyEntrants returns the rated-match candidate pool: for each
// user, their newest active entrant that has run healthily at least once,
// along with its health ratio.
func (s *SelectorService) LatestHealthyEntrants(ctx context.Context) ([]EntrantHealth, error) {
	type row struct {
		ID             string
		UserID         string
		FilesHash      string
		Active         bool
		SubmissionDate time.Time
		Healthies      int64
		Total          int64
	}
	var rows []row
	err := s.DB.WithContext(ctx).
		Raw(latestHealthyQuery, true, true, true, true).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying healthy entrants: %w", err)
	}

	pool := make([]EntrantHealth, 0, len(rows))
	for _, r := range rows {
		pool = append(pool, EntrantHealth{
			Entrant: models.Entrant{
				ID:             r.ID,
				UserID:         r.UserID,
				FilesHash:      r.FilesHash,
				Active:         r.Active,
				SubmissionDate: r.SubmissionDate,
			},
			Health: float64(r.Healthies) / float64(r.Total),
		})
	}
	return pool, nil
}

// RatingsForEntrants returns each entrant's current derived rating, in input
// order. A rating is never stored: it is the configured initial score plus
// the sum of every points delta recorded against any entrant owned by the
// same user. Summing on read sidesteps concurrent-update races between
// matchmakers.
func (s *SelectorService) RatingsForEntrants(ctx context.Context, entrants []models.Entrant, initialScore float64) ([]float64, error) {
	if len(entrants) == 0 {
		return nil, nil
	}

	userIDs := make([]string, 0, len(entrants))
	seen := make(map[string]bool)
	for _, e := range entrants {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			userIDs = append(userIDs, e.UserID)
		}
	}

	type row struct {
		UserID string
		Elo    float64
	}
	var rows []row
	err := s.DB.WithContext(ctx).Raw(`
SELECT e.user_id AS user_id, SUM(r.points_delta) AS elo
FROM results r
JOIN entrants e ON e.id = r.entrant_id
WHERE e.user_id IN ?
GROUP BY e.user_id`, userIDs).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying rating sums: %w", err)
	}

	byUser := make(map[string]float64, len(rows))
	for _, r := range rows {
		byUser[r.UserID] = r.Elo
	}

	elos := make([]float64, len(entrants))
	for i, e := range entrants {
		elos[i] = initialScore + byUser[e.UserID]
	}
	return elos, nil
}

// PickTest seats one untested entrant, chosen uniformly, in every slot of a
// self-test match. The runner addresses entrants by content hash and accepts
// the same hash in every seat, so an entrant can measure its health against
// copies of itself before any opponent is put at risk.
func PickTest(rng *rand.Rand, untested []models.Entrant, seats int) []models.Entrant {
	if seats < 1 || len(untested) == 0 {
		return nil
	}
	chosen := untested[rng.Intn(len(untested))]
	picked := make([]models.Entrant, seats)
	for i := range picked {
		picked[i] = chosen
	}
	return picked
}

// PickTypical draws seats entrants from the pool without replacement, with
// probability proportional to health. Entrants that execute reliably play
// more often, but anything with nonzero health stays in the running. Returns
// nil when the pool is too small; the caller treats that as a skip and tries
// again later, not as an error.
func PickTypical(rng *rand.Rand, pool []EntrantHealth, seats int) []models.Entrant {
	if seats < 1 || len(pool) < seats {
		return nil
	}

	remaining := append([]EntrantHealth(nil), pool...)
	picked := make([]models.Entrant, 0, seats)
	for len(picked) < seats {
		var total float64
		for _, c := range remaining {
			total += c.Health
		}
		if total <= 0 {
			return nil
		}
		roll := rng.Float64() * total
		i := 0
		for ; i < len(remaining)-1; i++ {
			roll -= remaining[i].Health
			if roll < 0 {
				break
			}
		}
		picked = append(picked, remaining[i].Entrant)
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return picked
}
