package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/AI-Wars-Soc/matchmaker/models"
)

// DeltaPair is the classical two-player Elo delta for player A against
// player B. winnerWeight is A's expected share of the result: 1 when A wins
// outright, 0.5 for a draw. B's delta is the negation.
func DeltaPair(aScore, bScore, winnerWeight, turbulence float64) float64 {
	aRating := math.Pow(10, aScore/400)
	bRating := math.Pow(10, bScore/400)
	aExpected := aRating / (aRating + bRating)
	return turbulence * (winnerWeight - aExpected)
}

// CalculateDeltas computes one rating delta per player for an arbitrary-size
// match, given each player's outcome and current rating.
//
// Players are grouped into faux teams by outcome (win, loss, draw). Each
// non-empty pair of teams plays a two-player Elo exchange using the summed
// team ratings, and a team's swing is split evenly between its members.
// Pairings with an empty side are omitted, which keeps the total exchange
// closed. When every player lands on one team (all draws, or a walkover where
// everyone wins), members are sorted by rating and each one draws against its
// mirror: lowest vs highest, second lowest vs second highest, and so on; the
// exact middle of an odd-sized team is left untouched.
//
// The deltas always sum to zero, and for two players the result collapses to
// the plain two-player formula. Both properties are re-checked before
// returning; a violation means a bug in this algorithm and comes back as an
// error so nothing gets persisted from it.
func CalculateDeltas(outcomes []models.Outcome, elos []float64, turbulence float64) ([]float64, error) {
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("no outcomes given")
	}
	if len(outcomes) != len(elos) {
		return nil, fmt.Errorf("%d outcomes for %d ratings", len(outcomes), len(elos))
	}
	for i, o := range outcomes {
		if !o.Valid() {
			return nil, fmt.Errorf("invalid outcome %d at slot %d", o, i)
		}
		if math.IsNaN(elos[i]) || math.IsInf(elos[i], 0) {
			return nil, fmt.Errorf("non-finite rating %v at slot %d", elos[i], i)
		}
	}

	counts := make(map[models.Outcome]int)
	totals := make(map[models.Outcome]float64)
	for i, o := range outcomes {
		counts[o]++
		totals[o] += elos[i]
	}

	// Inter-team swings, skipping any pairing with an empty side.
	var winLoss, winDraw, lossDraw float64
	if counts[models.OutcomeWin] > 0 && counts[models.OutcomeLoss] > 0 {
		winLoss = DeltaPair(totals[models.OutcomeWin], totals[models.OutcomeLoss], 1, turbulence)
	}
	if counts[models.OutcomeWin] > 0 && counts[models.OutcomeDraw] > 0 {
		winDraw = DeltaPair(totals[models.OutcomeWin], totals[models.OutcomeDraw], 1, turbulence)
	}
	if counts[models.OutcomeLoss] > 0 && counts[models.OutcomeDraw] > 0 {
		lossDraw = DeltaPair(totals[models.OutcomeDraw], totals[models.OutcomeLoss], 1, turbulence)
	}

	var singleTeam models.Outcome
	switch {
	case counts[models.OutcomeWin] == 0 && counts[models.OutcomeLoss] == 0:
		singleTeam = models.OutcomeDraw
	case counts[models.OutcomeWin] == 0 && counts[models.OutcomeDraw] == 0:
		singleTeam = models.OutcomeLoss
	case counts[models.OutcomeLoss] == 0 && counts[models.OutcomeDraw] == 0:
		singleTeam = models.OutcomeWin
	}

	// Intra-team mirror draws for the single-team case.
	intra := make([]float64, len(outcomes))
	if singleTeam != 0 {
		members := make([]int, 0, len(outcomes))
		for i := range outcomes {
			members = append(members, i)
		}
		sort.SliceStable(members, func(a, b int) bool {
			return elos[members[a]] < elos[members[b]]
		})
		for pos, i := range members {
			opp := len(members) - 1 - pos
			if opp == pos {
				continue
			}
			intra[i] = DeltaPair(elos[i], elos[members[opp]], 0.5, turbulence)
		}
	}

	deltas := make([]float64, len(outcomes))
	for i, o := range outcomes {
		var d float64
		switch o {
		case models.OutcomeWin:
			d = (winLoss + winDraw) / float64(counts[models.OutcomeWin])
		case models.OutcomeLoss:
			d = (-winLoss - lossDraw) / float64(counts[models.OutcomeLoss])
		case models.OutcomeDraw:
			d = (lossDraw - winDraw) / float64(counts[models.OutcomeDraw])
		}
		deltas[i] = d + intra[i]
	}

	if err := checkDeltas(outcomes, elos, deltas, turbulence); err != nil {
		return nil, err
	}
	return deltas, nil
}

// outcomeRank orders outcomes by how well the player did.
func outcomeRank(o models.Outcome) int {
	switch o {
	case models.OutcomeWin:
		return 2
	case models.OutcomeDraw:
		return 1
	default:
		return 0
	}
}

// checkDeltas re-verifies the closed-system invariants on a computed delta
// set: zero sum, and agreement with the plain two-player formula when only
// two players took part.
func checkDeltas(outcomes []models.Outcome, elos, deltas []float64, turbulence float64) error {
	var sum float64
	for _, d := range deltas {
		sum += d
	}
	if math.Abs(sum) >= 1e-6 {
		return fmt.Errorf("rating deltas sum to %g, want 0", sum)
	}

	if len(outcomes) != 2 {
		return nil
	}
	if outcomes[0] == models.OutcomeDraw && outcomes[1] == models.OutcomeDraw {
		want := DeltaPair(math.Min(elos[0], elos[1]), math.Max(elos[0], elos[1]), 0.5, turbulence)
		got := math.Max(deltas[0], deltas[1])
		if !closeTo(got, want) {
			return fmt.Errorf("two-player draw delta %g, want %g", got, want)
		}
	}
	if outcomes[0] != outcomes[1] {
		weight := 0.0
		if outcomeRank(outcomes[0]) > outcomeRank(outcomes[1]) {
			weight = 1
		}
		want := DeltaPair(elos[0], elos[1], weight, turbulence)
		if !closeTo(deltas[0], want) {
			return fmt.Errorf("two-player delta %g, want %g", deltas[0], want)
		}
	}
	return nil
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
