package app

import (
	"math"

	"trivia-live-service/internal/domain"
)

// ScoringConfig holds the point values of one answer.
type ScoringConfig struct {
	FirstAnswerBonus float64
	CorrectPoints    float64
	WrongPoints      float64
}

// DefaultScoringConfig returns the production point values.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		FirstAnswerBonus: 50,
		CorrectPoints:    300,
		WrongPoints:      10,
	}
}

// ScoreResult is the outcome of scoring one answer.
type ScoreResult struct {
	Score     float64
	IsCorrect bool
}

// Delta converts the result into the increments applied to player totals.
func (r ScoreResult) Delta() domain.ScoreDelta {
	if r.IsCorrect {
		return domain.ScoreDelta{Score: RoundScore(r.Score), Correct: 1}
	}
	return domain.ScoreDelta{Score: RoundScore(r.Score), Wrong: 1}
}

// Score computes the points for an answer given its 1-based placement among answers to the
// same question. A correct answer earns correctPoints plus a bonus shared out by placement;
// a wrong one earns wrongPoints divided by placement. Placement below 1 counts as 1.
func Score(choiceKey, correctChoiceKey string, placement int, firstAnswerBonus, correctPoints, wrongPoints float64) ScoreResult {
	if placement < 1 {
		placement = 1
	}
	p := float64(placement)
	if choiceKey == correctChoiceKey {
		return ScoreResult{Score: correctPoints + firstAnswerBonus/p, IsCorrect: true}
	}
	return ScoreResult{Score: wrongPoints / p}
}

// Score applies cfg's point values.
func (cfg ScoringConfig) Score(choiceKey, correctChoiceKey string, placement int) ScoreResult {
	return Score(choiceKey, correctChoiceKey, placement, cfg.FirstAnswerBonus, cfg.CorrectPoints, cfg.WrongPoints)
}

// RoundScore rounds to the 4 decimal places scores are persisted with.
func RoundScore(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
