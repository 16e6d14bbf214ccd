package usecase

import (
	"math"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
)

// CombinedOdds is the fair price of covering two outcomes: 1/(1/a + 1/b).
func CombinedOdds(a, b float64) (float64, bool) {
	if a <= 0 || b <= 0 {
		return 0, false
	}
	return 1 / (1/a + 1/b), true
}

// RecommendationOdds prices an outcome from the three-way snapshot.
func RecommendationOdds(outcome match.Outcome, prices match.ThreeWay) (float64, bool) {
	switch outcome {
	case match.OutcomeHome:
		return positive(prices.Home)
	case match.OutcomeDraw:
		return positive(prices.Draw)
	case match.OutcomeAway:
		return positive(prices.Away)
	case match.OutcomeHomeOrDraw:
		return combinedOf(prices.Home, prices.Draw)
	case match.OutcomeDrawOrAway:
		return combinedOf(prices.Draw, prices.Away)
	default:
		return 0, false
	}
}

// AlternateConfirmed holds when the alternate is no dearer than the primary
// pick and still strictly above the minimum-value floor.
func AlternateConfirmed(alternate, primary, floor float64) bool {
	return alternate <= primary && alternate > floor
}

// RoundOdds keeps two decimals, the precision bookmakers quote.
func RoundOdds(v float64) float64 {
	return math.Round(v*100) / 100
}

func positive(v *float64) (float64, bool) {
	if v == nil || *v <= 0 {
		return 0, false
	}
	return *v, true
}

func combinedOf(a, b *float64) (float64, bool) {
	x, ok := positive(a)
	if !ok {
		return 0, false
	}
	y, ok := positive(b)
	if !ok {
		return 0, false
	}
	return CombinedOdds(x, y)
}
