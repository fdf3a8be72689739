package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/AI-Wars-Soc/matchmaker/models"
	"github.com/AI-Wars-Soc/matchmaker/utils"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// RecorderService persists finished matches and applies rating updates.
type RecorderService struct {
	DB           *gorm.DB
	Selector     *SelectorService
	Archive      *utils.RecordingArchive // nil disables archival
	Gamemode     string
	Turbulence   float64
	InitialScore float64

	newID func() string
}

func NewRecorderService(db *gorm.DB, selector *SelectorService, archive *utils.RecordingArchive, gamemode string, turbulence, initialScore float64) *RecorderService {
	return &RecorderService{
		DB:           db,
		Selector:     selector,
		Archive:      archive,
		Gamemode:     gamemode,
		Turbulence:   turbulence,
		InitialScore: initialScore,
		newID:        uuid.NewString,
	}
}

// SaveResult writes one Match row plus one Result per entrant, all in a
// single transaction, so a match is either fully recorded or not recorded at
// all. updateScores asks for rating deltas; it is forced off when no slot
// produced a healthy result, because an all-crash match carries no signal
// worth rating. Self-test matches pass updateScores false and never move
// anyone's rating.
func (s *RecorderService) SaveResult(ctx context.Context, entrants []models.Entrant, result *MatchResult, updateScores bool) (*models.Match, error) {
	if len(result.SubmissionResults) != len(entrants) {
		return nil, fmt.Errorf("got %d results for %d entrants",
			len(result.SubmissionResults), len(entrants))
	}

	anyHealthy := false
	for _, r := range result.SubmissionResults {
		if r.Healthy {
			anyHealthy = true
			break
		}
	}

	deltas := make([]float64, len(entrants))
	if updateScores && anyHealthy {
		elos, err := s.Selector.RatingsForEntrants(ctx, entrants, s.InitialScore)
		if err != nil {
			return nil, err
		}
		outcomes := make([]models.Outcome, len(entrants))
		for i, r := range result.SubmissionResults {
			outcomes[i] = r.Outcome
		}
		deltas, err = CalculateDeltas(outcomes, elos, s.Turbulence)
		if err != nil {
			return nil, fmt.Errorf("computing rating deltas: %w", err)
		}
	}

	match := &models.Match{
		ID:        s.newID(),
		MatchDate: time.Now().UTC(),
		Recording: string(result.Recording),
	}

	// Archive before the insert so the row never needs a second write.
	if s.Archive != nil {
		key := fmt.Sprintf("recordings/%s/%s.json", slug.Make(s.Gamemode), match.ID)
		if err := s.Archive.Upload(ctx, key, result.Recording); err != nil {
			log.Printf("[recorder] ⚠️ failed to archive recording for match %s: %v", match.ID, err)
		} else {
			match.RecordingKey = &key
		}
	}

	for i, e := range entrants {
		r := result.SubmissionResults[i]
		match.Results = append(match.Results, models.Result{
			ID:          s.newID(),
			MatchID:     match.ID,
			EntrantID:   e.ID,
			Outcome:     r.Outcome,
			Healthy:     r.Healthy,
			PointsDelta: deltas[i],
			PlayerID:    r.PlayerID,
			Prints:      r.Printed,
			ResultCode:  r.ResultCode,
		})
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(match).Error
	})
	if err != nil {
		return nil, fmt.Errorf("saving match: %w", err)
	}
	return match, nil
}
