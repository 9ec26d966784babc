package domain

import (
	"time"
)

// DefaultAvatar is shown for players that never picked one.
const DefaultAvatar = "big-mac"

// MatchStatus is the lifecycle state of a match. Transitions only move forward.
type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchReady     MatchStatus = "ready"
	MatchPlaying   MatchStatus = "playing"
	MatchCompleted MatchStatus = "completed"
)

func (s MatchStatus) rank() int {
	switch s {
	case MatchScheduled:
		return 0
	case MatchReady:
		return 1
	case MatchPlaying:
		return 2
	case MatchCompleted:
		return 3
	}
	return -1
}

// Valid reports whether s is a known status.
func (s MatchStatus) Valid() bool { return s.rank() >= 0 }

// CanAdvanceTo reports whether moving from s to next keeps the status monotonic.
func (s MatchStatus) CanAdvanceTo(next MatchStatus) bool {
	return next.Valid() && next.rank() >= s.rank()
}

// SynchroData is the part of a match clients watch to stay in step with the question timer.
type SynchroData struct {
	IsStarted             bool `json:"isStarted"`
	CurrentQuestionNumber int  `json:"currentQuestionNumber"`
	IsResult              bool `json:"isResult"`
	MatchOver             bool `json:"matchOver"`
}

// Rating aggregates player ratings of a match.
type Rating struct {
	TotalScore int            `json:"ratingTotalScore"`
	Players    map[string]int `json:"ratingPlayers"`
}

// Apply records score for playerID, replacing any earlier rating by the same player.
func (r Rating) Apply(playerID string, score int) Rating {
	players := make(map[string]int, len(r.Players)+1)
	for id, s := range r.Players {
		players[id] = s
	}
	total := r.TotalScore
	if prev, ok := players[playerID]; ok {
		total -= prev
	}
	players[playerID] = score
	return Rating{TotalScore: total + score, Players: players}
}

// Match is one scheduled live round of questions.
type Match struct {
	ID                string        `json:"id" yaml:"id"`
	QuestionKeys      []string      `json:"questions" yaml:"questions"`
	StartingAt        time.Time     `json:"startingAt" yaml:"startingAt"`
	LobbyDuration     time.Duration `json:"lobbyDuration" yaml:"lobbyDuration"`
	QuestionTimeLimit time.Duration `json:"questionTimeLimit" yaml:"questionTimeLimit"`
	ResultTimeLimit   time.Duration `json:"resultTimeLimit" yaml:"resultTimeLimit"`
	Status            MatchStatus   `json:"status" yaml:"status"`
	IsLocked          bool          `json:"isLocked" yaml:"-"`
	LeaseOwner        string        `json:"-" yaml:"-"`
	LeaseUntil        time.Time     `json:"-" yaml:"-"`
	Synchro           SynchroData   `json:"synchroData" yaml:"-"`
	Rating            *Rating       `json:"rating,omitempty" yaml:"-"`
}

// MatchProgress is a lifecycle write: status, synchro block and lease in one update.
type MatchProgress struct {
	Status     MatchStatus
	Synchro    SynchroData
	IsLocked   bool
	LeaseUntil time.Time
}

// Claim is the outcome of an attempt to take the lifecycle lease of a match.
type Claim struct {
	Match   Match
	Claimed bool
}

// DisplayInfo is what a player shows to others.
type DisplayInfo struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// MatchPlayer is a player's subscription to one match in one locale.
type MatchPlayer struct {
	PlayerID       string    `json:"playerId"`
	DisplayName    string    `json:"displayName"`
	Avatar         string    `json:"avatar"`
	Score          float64   `json:"score"`
	CorrectAnswers int       `json:"correctAnswers"`
	WrongAnswers   int       `json:"wrongAnswers"`
	RatingScore    int       `json:"ratingScore,omitempty"`
	RatingComment  string    `json:"ratingComment,omitempty"`
	AddedOn        time.Time `json:"addedOn"`
	UpdatedOn      time.Time `json:"updatedOn"`
}

// PlayerAnswer is the immutable fact that a player picked a choice for a question.
type PlayerAnswer struct {
	PlayerID    string    `json:"playerId"`
	PlayerName  string    `json:"playerName"`
	QuestionKey string    `json:"questionKey"`
	ChoiceKey   string    `json:"selectedChoiceKey"`
	Placement   int       `json:"placement"`
	AddedOn     time.Time `json:"addedOn"`
}

// AnswerID is the identity used to keep answers unique per player and question.
func AnswerID(playerID, questionKey string) string {
	return playerID + "-" + questionKey
}

// Question is locale-independent question metadata.
type Question struct {
	Key       string        `json:"key"`
	TimeLimit time.Duration `json:"timeLimit"`
	AssetPath string        `json:"assetPath,omitempty"`
}

// Choice is one option of a question.
type Choice struct {
	Key     string `json:"key"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// QuestionChoices holds the localized prompt and options of a question.
type QuestionChoices struct {
	QuestionKey string   `json:"questionKey"`
	Locale      string   `json:"locale"`
	Prompt      string   `json:"prompt"`
	Choices     []Choice `json:"choices"`
}

// CorrectChoiceKey returns the key of the option marked correct.
func (c QuestionChoices) CorrectChoiceKey() (string, error) {
	for _, choice := range c.Choices {
		if choice.Correct {
			return choice.Key, nil
		}
	}
	return "", ErrChoicesNotFound
}

// PlayerProfile is the lifetime, locale-scoped record of a player.
type PlayerProfile struct {
	PlayerID            string    `json:"playerId"`
	Nickname            string    `json:"nickname"`
	Avatar              string    `json:"avatar"`
	TotalScore          float64   `json:"totalScore"`
	TotalQuestions      int       `json:"totalQuestions"`
	TotalCorrectAnswers int       `json:"totalCorrectAnswers"`
	TotalWrongAnswers   int       `json:"totalWrongAnswers"`
	GamesPlayed         []string  `json:"gamesPlayed"`
	LastGame            string    `json:"lastGame,omitempty"`
	AddedOn             time.Time `json:"addedOn"`
	UpdatedOn           time.Time `json:"updatedOn"`
}

// ScoreDelta is the additive change one answer makes to a player's totals.
type ScoreDelta struct {
	Score   float64
	Correct int
	Wrong   int
}

// Add accumulates d2 into d.
func (d ScoreDelta) Add(d2 ScoreDelta) ScoreDelta {
	return ScoreDelta{Score: d.Score + d2.Score, Correct: d.Correct + d2.Correct, Wrong: d.Wrong + d2.Wrong}
}

// QuestionAnswerStatistics counts how many players picked each choice.
type QuestionAnswerStatistics struct {
	QuestionKey string           `json:"questionKey"`
	Choices     map[string]int64 `json:"choices"`
	Total       int64            `json:"total"`
}

// RewardTier is one of the two prizes of a match.
type RewardTier struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LoyaltyID   string `json:"loyaltyId,omitempty"`
	ImagePath   string `json:"-"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// Reward is the per-match, per-locale prize configuration.
type Reward struct {
	MatchID   string     `json:"matchId"`
	Locale    string     `json:"locale"`
	LoyaltyID string     `json:"loyaltyId"`
	IconPath  string     `json:"-"`
	ImagePath string     `json:"-"`
	Standard  RewardTier `json:"standardReward"`
	Premium   RewardTier `json:"premiumReward"`
}

// Reward tier names.
const (
	TierStandard = "standard"
	TierPremium  = "premium"
)

// ResolvedReward is the tier a player earned.
type ResolvedReward struct {
	Tier      string     `json:"tier"`
	LoyaltyID string     `json:"loyaltyId"`
	Reward    RewardTier `json:"reward"`
	IconURL   string     `json:"iconUrl,omitempty"`
	Rank      int        `json:"rank"`
}

// LeaderboardEntry is one ranked row of player statistics.
type LeaderboardEntry struct {
	PlayerID       string  `json:"playerId"`
	Nickname       string  `json:"nickname"`
	Avatar         string  `json:"avatar"`
	Rank           int     `json:"position"`
	Score          float64 `json:"score"`
	TotalAnswers   int     `json:"totalAnswers"`
	CorrectAnswers int     `json:"correctAnswers"`
	WrongAnswers   int     `json:"wrongAnswers"`
	IsPlayer       bool    `json:"isPlayer"`
}

// Leaderboard is the ranked view of a scope.
type Leaderboard struct {
	Entries      []LeaderboardEntry `json:"playersStatistics"`
	TotalPlayers int                `json:"totalPlayers"`
}

// PlayerStanding is a raw scope record as read from a store, before ranking.
type PlayerStanding struct {
	PlayerID       string
	Nickname       string
	Avatar         string
	Score          float64
	CorrectAnswers int
	WrongAnswers   int
	TotalQuestions int
}

// QuestionContent is a question with its choices in every locale, as loaded from the content store.
type QuestionContent struct {
	Question Question                   `json:"question"`
	Locales  map[string]QuestionChoices `json:"locales"`
}

// Choices returns the choices for locale.
func (c QuestionContent) Choices(locale string) (QuestionChoices, error) {
	choices, ok := c.Locales[locale]
	if !ok || len(choices.Choices) == 0 {
		return QuestionChoices{}, ErrChoicesNotFound
	}
	return choices, nil
}
