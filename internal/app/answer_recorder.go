package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trivia-live-service/internal/domain"
)

// AnswerRequest is one player's answer to one question of a match.
type AnswerRequest struct {
	MatchID     string `json:"matchId"`
	PlayerID    string `json:"playerId"`
	PlayerName  string `json:"playerName"`
	QuestionKey string `json:"questionKey"`
	ChoiceKey   string `json:"selectedChoiceKey"`
	Locale      string `json:"locale"`
}

func (r AnswerRequest) validate() error {
	switch {
	case r.PlayerID == "":
		return domain.MissingInput("playerId")
	case r.PlayerName == "":
		return domain.MissingInput("playerName")
	case r.MatchID == "":
		return domain.MissingInput("matchId")
	case r.QuestionKey == "":
		return domain.MissingInput("questionKey")
	case r.ChoiceKey == "":
		return domain.MissingInput("selectedChoiceKey")
	case r.Locale == "":
		return domain.MissingInput("locale")
	}
	return nil
}

// AnswerOutcome is what a recorded answer earned.
type AnswerOutcome struct {
	QuestionKey string  `json:"questionKey"`
	Placement   int     `json:"placement"`
	Score       float64 `json:"score"`
	IsCorrect   bool    `json:"isCorrect"`
}

// AnswerRecorder records answers exactly once and applies their scores.
type AnswerRecorder struct {
	plays     PlayStore
	questions QuestionRepository
	events    EventPublisher
	scoring   ScoringConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewAnswerRecorder(plays PlayStore, questions QuestionRepository, events EventPublisher, scoring ScoringConfig, logger *slog.Logger) *AnswerRecorder {
	if events == nil {
		events = nopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerRecorder{
		plays:     plays,
		questions: questions,
		events:    events,
		scoring:   scoring,
		logger:    logger,
		now:       time.Now,
	}
}

// Record runs the answer pipeline. Steps are applied in order and a failing step stops the
// rest; steps already applied stay applied.
func (r *AnswerRecorder) Record(ctx context.Context, req AnswerRequest) (AnswerOutcome, error) {
	if err := req.validate(); err != nil {
		return AnswerOutcome{}, err
	}
	log := r.logger.With("match_id", req.MatchID, "player_id", req.PlayerID, "question_key", req.QuestionKey)

	if _, err := r.plays.GetMatchPlayer(ctx, req.MatchID, req.Locale, req.PlayerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AnswerOutcome{}, domain.ErrNotSubscribed
		}
		return AnswerOutcome{}, domain.Internal("load match player", err)
	}

	placement, err := r.plays.CreateAnswer(ctx, req.MatchID, req.Locale, domain.PlayerAnswer{
		PlayerID:    req.PlayerID,
		PlayerName:  req.PlayerName,
		QuestionKey: req.QuestionKey,
		ChoiceKey:   req.ChoiceKey,
		AddedOn:     r.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			log.Warn("duplicate answer rejected")
			return AnswerOutcome{}, domain.ErrAnswerExists
		}
		return AnswerOutcome{}, r.fail(log, "create answer", err)
	}

	if err := r.plays.IncrementChoice(ctx, req.MatchID, req.Locale, req.QuestionKey, req.ChoiceKey); err != nil {
		return AnswerOutcome{}, r.fail(log, "increment choice statistics", err)
	}

	correct, err := r.questions.CorrectChoice(ctx, req.QuestionKey, req.Locale)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Error("question content missing", "error", err)
			return AnswerOutcome{}, err
		}
		return AnswerOutcome{}, r.fail(log, "load correct choice", err)
	}

	result := r.scoring.Score(req.ChoiceKey, correct, placement)
	delta := result.Delta()

	if err := r.plays.ApplyMatchScore(ctx, req.MatchID, req.Locale, req.PlayerID, delta); err != nil {
		return AnswerOutcome{}, r.fail(log, "apply match score", err)
	}
	if err := r.plays.ApplyLifetimeScore(ctx, req.Locale, req.PlayerID, req.MatchID, delta); err != nil {
		return AnswerOutcome{}, r.fail(log, "apply lifetime score", err)
	}

	outcome := AnswerOutcome{
		QuestionKey: req.QuestionKey,
		Placement:   placement,
		Score:       delta.Score,
		IsCorrect:   result.IsCorrect,
	}
	if err := r.events.Publish(ctx, newEvent(EventAnswerRecorded, req.MatchID, r.now(), answerRecordedPayload{
		PlayerID:    req.PlayerID,
		Locale:      req.Locale,
		QuestionKey: req.QuestionKey,
		ChoiceKey:   req.ChoiceKey,
		Placement:   placement,
		Score:       delta.Score,
		IsCorrect:   result.IsCorrect,
	})); err != nil {
		log.Warn("publish answer event failed", "error", err)
	}
	log.Debug("answer recorded", "placement", placement, "score", delta.Score, "correct", result.IsCorrect)
	return outcome, nil
}

func (r *AnswerRecorder) fail(log *slog.Logger, step string, err error) error {
	log.Error("answer pipeline failed", "step", step, "error", err)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrFailedPrecondition) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return domain.Internal(step, err)
}

type answerRecordedPayload struct {
	PlayerID    string  `json:"playerId"`
	Locale      string  `json:"locale"`
	QuestionKey string  `json:"questionKey"`
	ChoiceKey   string  `json:"choiceKey"`
	Placement   int     `json:"placement"`
	Score       float64 `json:"score"`
	IsCorrect   bool    `json:"isCorrect"`
}
