package app

import (
	"context"
	"time"

	"trivia-live-service/internal/domain"
)

// MatchRepository stores match schedules, lifecycle state and leases.
type MatchRepository interface {
	GetMatch(ctx context.Context, matchID string) (domain.Match, error)
	// DueMatches returns scheduled matches whose start is before the given instant.
	DueMatches(ctx context.Context, before time.Time) ([]domain.Match, error)
	// StalledMatches returns locked, unfinished matches whose lease expired before now.
	StalledMatches(ctx context.Context, now time.Time) ([]domain.Match, error)
	ListMatches(ctx context.Context) ([]domain.Match, error)
	// ClaimMatch atomically takes the lifecycle lease. A scheduled match moves to ready;
	// a stalled one keeps its status. Claimed is false when someone else holds a live lease.
	ClaimMatch(ctx context.Context, matchID, owner string, now, leaseUntil time.Time) (domain.Claim, error)
	// SaveProgress writes a lifecycle transition if owner still holds the lease.
	SaveProgress(ctx context.Context, matchID, owner string, progress domain.MatchProgress) error
	SaveRating(ctx context.Context, matchID string, rating domain.Rating) error
	ScheduleMatch(ctx context.Context, match domain.Match) error
}

// QuestionRepository loads question content, usually through a cache.
type QuestionRepository interface {
	GetQuestion(ctx context.Context, questionKey string) (domain.Question, error)
	GetChoices(ctx context.Context, questionKey, locale string) (domain.QuestionChoices, error)
	CorrectChoice(ctx context.Context, questionKey, locale string) (string, error)
}

// PlayStore holds everything players write during a match: answers, choice counters,
// match subscriptions and lifetime profiles. Every counter is an atomic increment.
type PlayStore interface {
	// CreateAnswer stores the answer only if the player has not answered the question yet,
	// and returns its placement: the number of earlier answers to the question plus one.
	CreateAnswer(ctx context.Context, matchID, locale string, answer domain.PlayerAnswer) (int, error)
	CountAnswers(ctx context.Context, matchID, locale, questionKey string) (int64, error)
	ListAnswers(ctx context.Context, matchID, locale string) ([]domain.PlayerAnswer, error)
	IncrementChoice(ctx context.Context, matchID, locale, questionKey, choiceKey string) error
	ChoiceStatistics(ctx context.Context, matchID, locale, questionKey string) (map[string]int64, error)

	// SubscribePlayer creates the match player unless it exists; created reports which happened.
	SubscribePlayer(ctx context.Context, matchID, locale string, player domain.MatchPlayer) (bool, error)
	UnsubscribePlayer(ctx context.Context, matchID, locale, playerID string) error
	GetMatchPlayer(ctx context.Context, matchID, locale, playerID string) (domain.MatchPlayer, error)
	ApplyMatchScore(ctx context.Context, matchID, locale, playerID string, delta domain.ScoreDelta) error
	OverwriteMatchScore(ctx context.Context, matchID, locale, playerID string, totals domain.ScoreDelta) error
	SetMatchRating(ctx context.Context, matchID, locale, playerID string, score int, comment string) error

	// EnsureProfile creates the lifetime profile with the given display info if it is missing.
	EnsureProfile(ctx context.Context, locale string, profile domain.PlayerProfile) error
	UpsertProfile(ctx context.Context, locale string, profile domain.PlayerProfile) error
	GetProfile(ctx context.Context, locale, playerID string) (domain.PlayerProfile, error)
	// ApplyLifetimeScore increments lifetime totals by one question and adds matchID to the
	// played set without duplicating it.
	ApplyLifetimeScore(ctx context.Context, locale, playerID, matchID string, delta domain.ScoreDelta) error

	// RankedPlayers returns every standing in scope ordered by the scope's score field, descending.
	RankedPlayers(ctx context.Context, scope domain.Scope) ([]domain.PlayerStanding, error)
}

// RewardRepository reads reward configuration.
type RewardRepository interface {
	GetReward(ctx context.Context, matchID, locale string) (domain.Reward, error)
}

// URLSigner turns a blob object path into a time-limited URL.
type URLSigner interface {
	SignedURL(ctx context.Context, objectPath string) (string, error)
}

// Notifier receives every persisted synchro change of a match.
type Notifier interface {
	MatchUpdated(match domain.Match)
}

// EventPublisher ships domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event is a domain event keyed by match.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	MatchID    string    `json:"matchId"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Event types.
const (
	EventAnswerRecorded = "answer.recorded"
	EventMatchStatus    = "match.status"
)

type nopNotifier struct{}

func (nopNotifier) MatchUpdated(domain.Match) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
