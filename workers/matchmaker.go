package workers

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/AI-Wars-Soc/matchmaker/models"
	"github.com/AI-Wars-Soc/matchmaker/services"
)

// Stats counts what one matchmaker has done so far. Counters are atomic so
// the status endpoint can read them while the loop runs.
type Stats struct {
	Iterations  atomic.Int64
	Matches     atomic.Int64
	TestMatches atomic.Int64
	Skips       atomic.Int64
	Failures    atomic.Int64
	LastMatch   atomic.Int64 // unix seconds, 0 until the first recorded match
}

type iterationOutcome int

const (
	iterationMatched iterationOutcome = iota
	iterationSkipped
	iterationFailed
)

// Matchmaker runs one matchmaking loop for a single game mode: pick
// candidates, run the match on the external runner, record the result, sleep.
// Several matchmakers run concurrently sharing nothing but the database, so
// their writes interleave freely; each SaveResult is independently atomic.
type Matchmaker struct {
	Name          string
	Gamemode      string
	Options       json.RawMessage
	PlayerCount   int
	TargetSeconds int

	Selector *services.SelectorService
	Runner   *services.RunnerClient
	Recorder *services.RecorderService
	Stats    *Stats

	rng *rand.Rand
}

func NewMatchmaker(name, gamemode string, options json.RawMessage, playerCount, targetSeconds int,
	selector *services.SelectorService, runner *services.RunnerClient, recorder *services.RecorderService) *Matchmaker {
	return &Matchmaker{
		Name:          name,
		Gamemode:      gamemode,
		Options:       options,
		PlayerCount:   playerCount,
		TargetSeconds: targetSeconds,
		Selector:      selector,
		Runner:        runner,
		Recorder:      recorder,
		Stats:         &Stats{},
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run loops until ctx is cancelled. Every failure is contained here: a bad
// iteration costs extra sleep, never the process.
func (m *Matchmaker) Run(ctx context.Context) {
	if m.PlayerCount < 1 {
		log.Printf("[%s] gamemode %s needs no players, nothing to do", m.Name, m.Gamemode)
		return
	}

	log.Printf("[%s] 🔁 matchmaking %s (%d players, target %ds/match)",
		m.Name, m.Gamemode, m.PlayerCount, m.TargetSeconds)

	for {
		start := time.Now()
		outcome := m.runOne(ctx)
		m.Stats.Iterations.Add(1)

		wait := m.waitAfter(outcome, time.Since(start))
		select {
		case <-ctx.Done():
			log.Printf("[%s] ⏹️ matchmaker stopped", m.Name)
			return
		case <-time.After(wait):
		}
	}
}

func (m *Matchmaker) runOne(ctx context.Context) iterationOutcome {
	outcome, err := m.tryMatch(ctx)
	if err != nil {
		m.Stats.Failures.Add(1)
		log.Printf("[%s] ❌ iteration failed: %v", m.Name, err)
		return iterationFailed
	}
	if outcome == iterationSkipped {
		m.Stats.Skips.Add(1)
	}
	return outcome
}

// tryMatch prefers a self-test for an untested entrant; otherwise it draws a
// rated match from the healthy pool. Too few eligible entrants is a skip, not
// an error.
func (m *Matchmaker) tryMatch(ctx context.Context) (iterationOutcome, error) {
	untested, err := m.Selector.UntestedEntrants(ctx)
	if err != nil {
		return iterationFailed, err
	}
	if picked := services.PickTest(m.rng, untested, m.PlayerCount); picked != nil {
		if err := m.playMatch(ctx, picked, false); err != nil {
			return iterationFailed, err
		}
		m.Stats.TestMatches.Add(1)
		return iterationMatched, nil
	}

	pool, err := m.Selector.LatestHealthyEntrants(ctx)
	if err != nil {
		return iterationFailed, err
	}
	picked := services.PickTypical(m.rng, pool, m.PlayerCount)
	if picked == nil {
		return iterationSkipped, nil
	}
	if err := m.playMatch(ctx, picked, true); err != nil {
		return iterationFailed, err
	}
	return iterationMatched, nil
}

func (m *Matchmaker) playMatch(ctx context.Context, entrants []models.Entrant, rated bool) error {
	hashes := make([]string, len(entrants))
	for i, e := range entrants {
		hashes[i] = e.FilesHash
	}

	result, err := m.Runner.RunMatch(ctx, m.Gamemode, m.Options, hashes)
	if err != nil {
		return err
	}

	match, err := m.Recorder.SaveResult(ctx, entrants, result, rated)
	if err != nil {
		return err
	}

	m.Stats.Matches.Add(1)
	m.Stats.LastMatch.Store(time.Now().Unix())
	log.Printf("[%s] ✅ recorded match %s (%d players, rated=%t)", m.Name, match.ID, len(entrants), rated)
	return nil
}

// waitAfter computes the post-iteration sleep: the remainder of the target
// per-match budget, an extra 1..max(2,target) second penalty when nothing
// useful happened, and a ±2.5% jitter so parallel matchmakers drift out of
// phase instead of hitting the database and runner in lockstep.
func (m *Matchmaker) waitAfter(outcome iterationOutcome, elapsed time.Duration) time.Duration {
	target := float64(m.TargetSeconds)
	wait := target - elapsed.Seconds()

	if outcome != iterationMatched {
		penaltyMax := m.TargetSeconds
		if penaltyMax < 2 {
			penaltyMax = 2
		}
		wait += 1 + m.rng.Float64()*float64(penaltyMax-1)
	}

	wait += 0.05 * target * (m.rng.Float64() - 0.5)

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait * float64(time.Second))
}
