package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/AI-Wars-Soc/matchmaker/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyResult(outcome models.Outcome, playerID int) SubmissionResult {
	return SubmissionResult{Outcome: outcome, Healthy: true, PlayerID: playerID, ResultCode: 0}
}

func matchResult(results ...SubmissionResult) *MatchResult {
	return &MatchResult{
		Recording:         json.RawMessage(`{"frames":[]}`),
		SubmissionResults: results,
	}
}

// TestSaveResult_CountMismatch checks a payload with the wrong number of
// slots is rejected before anything is written.
func TestSaveResult_CountMismatch(t *testing.T) {
	db := newTestDB(t)
	selector := NewSelectorService(db)
	recorder := NewRecorderService(db, selector, nil, "chess", 32, 1000)

	a := createEntrant(t, db, "user-a", true, time.Now())
	b := createEntrant(t, db, "user-b", true, time.Now())

	_, err := recorder.SaveResult(context.Background(),
		[]models.Entrant{a, b},
		matchResult(healthyResult(models.OutcomeWin, 0)), true)
	require.Error(t, err)

	var matches int64
	require.NoError(t, db.Model(&models.Match{}).Count(&matches).Error)
	assert.Zero(t, matches)
}

// TestSaveResult_SelfTestNeverMovesRatings checks a match saved with score
// updates off records zero deltas even for decisive outcomes.
func TestSaveResult_SelfTestNeverMovesRatings(t *testing.T) {
	db := newTestDB(t)
	selector := NewSelectorService(db)
	recorder := NewRecorderService(db, selector, nil, "chess", 32, 1000)

	e := createEntrant(t, db, "user-a", true, time.Now())

	match, err := recorder.SaveResult(context.Background(),
		[]models.Entrant{e, e},
		matchResult(healthyResult(models.OutcomeWin, 0), healthyResult(models.OutcomeLoss, 1)),
		false)
	require.NoError(t, err)

	var results []models.Result
	require.NoError(t, db.Where("match_id = ?", match.ID).Find(&results).Error)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Zero(t, r.PointsDelta)
	}
}

// TestSaveResult_AllUnhealthySkipsRatings checks a match where every entrant
// crashed is recorded, but moves nobody's rating.
func TestSaveResult_AllUnhealthySkipsRatings(t *testing.T) {
	db := newTestDB(t)
	selector := NewSelectorService(db)
	recorder := NewRecorderService(db, selector, nil, "chess", 32, 1000)

	a := createEntrant(t, db, "user-a", true, time.Now())
	b := createEntrant(t, db, "user-b", true, time.Now())

	crashed := matchResult(
		SubmissionResult{Outcome: models.OutcomeWin, Healthy: false, PlayerID: 0, ResultCode: 1},
		SubmissionResult{Outcome: models.OutcomeLoss, Healthy: false, PlayerID: 1, ResultCode: 1},
	)
	match, err := recorder.SaveResult(context.Background(), []models.Entrant{a, b}, crashed, true)
	require.NoError(t, err)

	var results []models.Result
	require.NoError(t, db.Where("match_id = ?", match.ID).Find(&results).Error)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Zero(t, r.PointsDelta, "an all-crash match carries no rating signal")
	}
}

// TestSaveResult_RatedMatchAppliesDeltas checks deltas come from the rating
// engine over the entrants' derived ratings and sum to zero.
func TestSaveResult_RatedMatchAppliesDeltas(t *testing.T) {
	db := newTestDB(t)
	selector := NewSelectorService(db)
	recorder := NewRecorderService(db, selector, nil, "chess", 32, 1000)

	a := createEntrant(t, db, "user-a", true, time.Now())
	recordResult(t, db, a, models.OutcomeWin, true, 200) // user-a sits at 1200
	b := createEntrant(t, db, "user-b", true, time.Now())
	recordResult(t, db, b, models.OutcomeWin, true, 400) // user-b sits at 1400

	match, err := recorder.SaveResult(context.Background(),
		[]models.Entrant{a, b},
		matchResult(healthyResult(models.OutcomeWin, 0), healthyResult(models.OutcomeLoss, 1)),
		true)
	require.NoError(t, err)

	var results []models.Result
	require.NoError(t, db.Where("match_id = ?", match.ID).Order("player_id").Find(&results).Error)
	require.Len(t, results, 2)

	want := DeltaPair(1200, 1400, 1, 32)
	assert.InDelta(t, want, results[0].PointsDelta, 1e-9)
	assert.InDelta(t, -want, results[1].PointsDelta, 1e-9)
}

// TestSaveResult_Atomic checks the match and its results are all-or-nothing:
// a failure on the last result insert must leave no match behind.
func TestSaveResult_Atomic(t *testing.T) {
	db := newTestDB(t)
	selector := NewSelectorService(db)
	recorder := NewRecorderService(db, selector, nil, "chess", 32, 1000)

	// Collide the second result's primary key with the first's.
	ids := []string{"match-1", "result-1", "result-1"}
	recorder.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	a := createEntrant(t, db, "user-a", true, time.Now())
	b := createEntrant(t, db, "user-b", true, time.Now())

	_, err := recorder.SaveResult(context.Background(),
		[]models.Entrant{a, b},
		matchResult(healthyResult(models.OutcomeWin, 0), healthyResult(models.OutcomeLoss, 1)),
		false)
	require.Error(t, err)

	var matches, results int64
	require.NoError(t, db.Model(&models.Match{}).Count(&matches).Error)
	require.NoError(t, db.Model(&models.Result{}).Count(&results).Error)
	assert.Zero(t, matches, "no partial match may be observable")
	assert.Zero(t, results)
}

// TestSaveResult_StoresRecording checks the opaque recording blob lands on
// the match row.
func TestSaveResult_StoresRecording(t *testing.T) {
	db := newTestDB(t)
	selector := NewSelectorService(db)
	recorder := NewRecorderService(db, selector, nil, "chess", 32, 1000)

	e := createEntrant(t, db, "user-a", true, time.Now())

	match, err := recorder.SaveResult(context.Background(),
		[]models.Entrant{e},
		matchResult(healthyResult(models.OutcomeWin, 0)), false)
	require.NoError(t, err)

	var stored models.Match
	require.NoError(t, db.First(&stored, "id = ?", match.ID).Error)
	assert.JSONEq(t, `{"frames":[]}`, stored.Recording)
	assert.Nil(t, stored.RecordingKey)
}
