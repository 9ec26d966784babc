package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"trivia-live-service/internal/domain"
)

// Result is the user-visible outcome of a command.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(msg string) Result { return Result{Success: true, Message: msg} }

// Deps are the collaborators of GameService. Signer, Notifier, Events, Clock and Logger are optional.
type Deps struct {
	Matches   MatchRepository
	Questions QuestionRepository
	Plays     PlayStore
	Rewards   RewardRepository
	Signer    URLSigner
	Notifier  Notifier
	Events    EventPublisher
	Clock     Clock
	Logger    *slog.Logger
}

// Config carries the tunables of the game rules.
type Config struct {
	Scoring          ScoringConfig
	Lifecycle        LifecycleConfig
	LeaderboardTop   int
	RewardRankCutoff int
}

// DefaultConfig returns the production rules.
func DefaultConfig() Config {
	return Config{
		Scoring:          DefaultScoringConfig(),
		Lifecycle:        DefaultLifecycleConfig(),
		LeaderboardTop:   DefaultLeaderboardTop,
		RewardRankCutoff: DefaultRewardRankCutoff,
	}
}

// GameService exposes the caller-facing trivia operations.
type GameService struct {
	matches   MatchRepository
	questions QuestionRepository
	plays     PlayStore
	rewards   RewardRepository
	signer    URLSigner
	clock     Clock
	logger    *slog.Logger

	recorder     *AnswerRecorder
	lifecycle    *LifecycleController
	leaderboards *LeaderboardAssembler
	resolver     RewardResolver
}

func NewGameService(deps Deps, cfg Config) *GameService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	recorder := NewAnswerRecorder(deps.Plays, deps.Questions, deps.Events, cfg.Scoring, deps.Logger)
	recorder.now = deps.Clock.Now

	return &GameService{
		matches:   deps.Matches,
		questions: deps.Questions,
		plays:     deps.Plays,
		rewards:   deps.Rewards,
		signer:    deps.Signer,
		clock:     deps.Clock,
		logger:    deps.Logger,
		recorder:  recorder,
		lifecycle: NewLifecycleController(deps.Matches, deps.Questions, cfg.Lifecycle,
			WithClock(deps.Clock),
			WithNotifier(deps.Notifier),
			WithEvents(deps.Events),
			WithLogger(deps.Logger),
		),
		leaderboards: NewLeaderboardAssembler(deps.Plays, cfg.LeaderboardTop),
		resolver:     NewRewardResolver(cfg.RewardRankCutoff),
	}
}

// SubscribePlayer joins a player to a match. Joining twice keeps the first subscription.
func (s *GameService) SubscribePlayer(ctx context.Context, matchID, playerID, locale string, info domain.DisplayInfo) (Result, error) {
	if err := required("matchId", matchID, "playerId", playerID, "locale", locale); err != nil {
		return Result{}, err
	}
	if _, err := s.getMatch(ctx, matchID); err != nil {
		return Result{}, err
	}

	now := s.clock.Now()
	if err := s.plays.EnsureProfile(ctx, locale, domain.PlayerProfile{
		PlayerID:  playerID,
		Nickname:  info.Nickname,
		Avatar:    info.Avatar,
		AddedOn:   now,
		UpdatedOn: now,
	}); err != nil {
		return Result{}, domain.Internal("ensure player profile", err)
	}

	created, err := s.plays.SubscribePlayer(ctx, matchID, locale, domain.MatchPlayer{
		PlayerID:    playerID,
		DisplayName: info.Nickname,
		Avatar:      info.Avatar,
		AddedOn:     now,
		UpdatedOn:   now,
	})
	if err != nil {
		return Result{}, domain.Internal("subscribe player", err)
	}
	if !created {
		return ok("Player already subscribed!"), nil
	}
	s.logger.Info("player subscribed", "match_id", matchID, "player_id", playerID, "locale", locale)
	return ok("Player subscribed!"), nil
}

// UnsubscribePlayer removes a player from a match.
func (s *GameService) UnsubscribePlayer(ctx context.Context, matchID, playerID, locale string) (Result, error) {
	if err := required("matchId", matchID, "playerId", playerID, "locale", locale); err != nil {
		return Result{}, err
	}
	if err := s.plays.UnsubscribePlayer(ctx, matchID, locale, playerID); err != nil {
		return Result{}, domain.Internal("unsubscribe player", err)
	}
	return ok("Player unsubscribed!"), nil
}

// SubmitAnswer records a player's answer and scores it.
func (s *GameService) SubmitAnswer(ctx context.Context, req AnswerRequest) (AnswerOutcome, error) {
	return s.recorder.Record(ctx, req)
}

// RunDueMatches sweeps the matches that are due or whose lease expired.
func (s *GameService) RunDueMatches(ctx context.Context) (SweepResult, error) {
	return s.lifecycle.RunDue(ctx)
}

// RunAllMatches sweeps every match, ignoring start times.
func (s *GameService) RunAllMatches(ctx context.Context) (SweepResult, error) {
	return s.lifecycle.RunAll(ctx)
}

// StartDueMatches claims the due and stalled matches and runs them in the background.
func (s *GameService) StartDueMatches(ctx context.Context) (SweepResult, error) {
	return s.lifecycle.StartDue(ctx)
}

// StartAllMatches claims every match and runs them in the background.
func (s *GameService) StartAllMatches(ctx context.Context) (SweepResult, error) {
	return s.lifecycle.StartAll(ctx)
}

// StopMatches cancels the background match runs and waits for them.
func (s *GameService) StopMatches() {
	s.lifecycle.Stop()
}

// GetLeaderboard returns the ranked statistics of scope for playerID.
func (s *GameService) GetLeaderboard(ctx context.Context, scope domain.Scope, playerID string) (domain.Leaderboard, error) {
	if err := required("locale", scope.Locale); err != nil {
		return domain.Leaderboard{}, err
	}
	if scope.Kind == domain.ScopeMatch {
		if _, err := s.getMatch(ctx, scope.MatchID); err != nil {
			return domain.Leaderboard{}, err
		}
	}
	return s.leaderboards.Assemble(ctx, scope, playerID)
}

// GetReward returns the tier playerID earned in a match, or nil when none applies.
func (s *GameService) GetReward(ctx context.Context, matchID, playerID, locale string) (*domain.ResolvedReward, error) {
	if err := required("matchId", matchID, "playerId", playerID, "locale", locale); err != nil {
		return nil, err
	}
	if _, err := s.getMatch(ctx, matchID); err != nil {
		return nil, err
	}

	entry, err := s.leaderboards.Locate(ctx, domain.MatchScope(matchID, locale), playerID)
	if err != nil {
		return nil, err
	}
	if entry.TotalAnswers == 0 {
		return nil, nil
	}

	reward, err := s.rewards.GetReward(ctx, matchID, locale)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, domain.Internal("load reward", err)
	}

	resolved := s.resolver.Resolve(&reward, entry.Rank, entry.TotalAnswers)
	if resolved == nil {
		return nil, nil
	}
	resolved.IconURL = s.sign(ctx, reward.IconPath)
	resolved.Reward.ImageURL = s.sign(ctx, resolved.Reward.ImagePath)
	return resolved, nil
}

// RegisterPlayer creates or updates the lifetime profile display fields.
func (s *GameService) RegisterPlayer(ctx context.Context, locale string, profile domain.PlayerProfile) (Result, error) {
	if err := required("locale", locale, "playerId", profile.PlayerID, "nickname", profile.Nickname); err != nil {
		return Result{}, err
	}
	now := s.clock.Now()
	profile.AddedOn = now
	profile.UpdatedOn = now
	if err := s.plays.UpsertProfile(ctx, locale, profile); err != nil {
		return Result{}, domain.Internal("upsert player profile", err)
	}
	return ok("Player saved!"), nil
}

// GetPlayer returns the lifetime profile and totals of a player in a locale.
func (s *GameService) GetPlayer(ctx context.Context, locale, playerID string) (domain.PlayerProfile, error) {
	if err := required("locale", locale, "playerId", playerID); err != nil {
		return domain.PlayerProfile{}, err
	}
	profile, err := s.plays.GetProfile(ctx, locale, playerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PlayerProfile{}, domain.ErrPlayerNotFound
		}
		return domain.PlayerProfile{}, domain.Internal("load player profile", err)
	}
	return profile, nil
}

// SubmitRating stores a player's 1-5 rating of a match. Rating again replaces the earlier score.
func (s *GameService) SubmitRating(ctx context.Context, matchID, playerID, locale string, score int, comment string) (Result, error) {
	if err := required("matchId", matchID, "playerId", playerID, "locale", locale); err != nil {
		return Result{}, err
	}
	if score < 1 || score > 5 {
		return Result{}, domain.ErrInvalidRating
	}
	match, err := s.getMatch(ctx, matchID)
	if err != nil {
		return Result{}, err
	}
	if err := s.plays.SetMatchRating(ctx, matchID, locale, playerID, score, comment); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{}, domain.ErrNotSubscribed
		}
		return Result{}, domain.Internal("save player rating", err)
	}

	var current domain.Rating
	if match.Rating != nil {
		current = *match.Rating
	}
	if err := s.matches.SaveRating(ctx, matchID, current.Apply(playerID, score)); err != nil {
		return Result{}, domain.Internal("save match rating", err)
	}
	return ok("Rating saved!"), nil
}

// QuestionStatistics returns how often each choice of a question was picked in a match.
// Total is the number of recorded answers, which the choice counters trail while an
// answer is being applied.
func (s *GameService) QuestionStatistics(ctx context.Context, matchID, questionKey, locale string) (domain.QuestionAnswerStatistics, error) {
	if err := required("matchId", matchID, "questionKey", questionKey, "locale", locale); err != nil {
		return domain.QuestionAnswerStatistics{}, err
	}
	counts, err := s.plays.ChoiceStatistics(ctx, matchID, locale, questionKey)
	if err != nil {
		return domain.QuestionAnswerStatistics{}, domain.Internal("load choice statistics", err)
	}
	total, err := s.plays.CountAnswers(ctx, matchID, locale, questionKey)
	if err != nil {
		return domain.QuestionAnswerStatistics{}, domain.Internal("count answers", err)
	}
	return domain.QuestionAnswerStatistics{QuestionKey: questionKey, Choices: counts, Total: total}, nil
}

// QuestionView is a question as shown to players during a match.
type QuestionView struct {
	Key              string       `json:"key"`
	Prompt           string       `json:"prompt"`
	Choices          []ChoiceView `json:"choices"`
	TimeLimitSeconds int          `json:"timeLimit"`
	AssetURL         string       `json:"assetUrl,omitempty"`
}

// ChoiceView hides which choice is correct.
type ChoiceView struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// GetQuestion returns the localized question with a signed asset URL.
func (s *GameService) GetQuestion(ctx context.Context, questionKey, locale string) (QuestionView, error) {
	if err := required("questionKey", questionKey, "locale", locale); err != nil {
		return QuestionView{}, err
	}
	q, err := s.questions.GetQuestion(ctx, questionKey)
	if err != nil {
		return QuestionView{}, err
	}
	choices, err := s.questions.GetChoices(ctx, questionKey, locale)
	if err != nil {
		return QuestionView{}, err
	}
	view := QuestionView{
		Key:              q.Key,
		Prompt:           choices.Prompt,
		Choices:          make([]ChoiceView, 0, len(choices.Choices)),
		TimeLimitSeconds: int(q.TimeLimit / time.Second),
		AssetURL:         s.sign(ctx, q.AssetPath),
	}
	for _, c := range choices.Choices {
		view.Choices = append(view.Choices, ChoiceView{Key: c.Key, Text: c.Text})
	}
	return view, nil
}

// GetMatch returns a match with its synchro state.
func (s *GameService) GetMatch(ctx context.Context, matchID string) (domain.Match, error) {
	if err := required("matchId", matchID); err != nil {
		return domain.Match{}, err
	}
	return s.getMatch(ctx, matchID)
}

// ScheduleMatch registers a new match in the scheduled state.
func (s *GameService) ScheduleMatch(ctx context.Context, match domain.Match) (Result, error) {
	if err := required("id", match.ID); err != nil {
		return Result{}, err
	}
	if len(match.QuestionKeys) == 0 {
		return Result{}, domain.MissingInput("questions")
	}
	if match.StartingAt.IsZero() {
		return Result{}, domain.MissingInput("startingAt")
	}
	match.Status = domain.MatchScheduled
	match.IsLocked = false
	match.Synchro = domain.SynchroData{}
	if err := s.matches.ScheduleMatch(ctx, match); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return Result{}, err
		}
		return Result{}, domain.Internal("schedule match", err)
	}
	s.logger.Info("match scheduled", "match_id", match.ID, "starting_at", match.StartingAt, "questions", len(match.QuestionKeys))
	return ok("Match scheduled!"), nil
}

// RecomputeMatchScores rebuilds every player's match totals from the recorded answers.
// It returns how many players were rewritten.
func (s *GameService) RecomputeMatchScores(ctx context.Context, matchID, locale string) (int, error) {
	if err := required("matchId", matchID, "locale", locale); err != nil {
		return 0, err
	}
	if _, err := s.getMatch(ctx, matchID); err != nil {
		return 0, err
	}
	answers, err := s.plays.ListAnswers(ctx, matchID, locale)
	if err != nil {
		return 0, domain.Internal("list answers", err)
	}
	sort.SliceStable(answers, func(i, j int) bool {
		if answers[i].QuestionKey != answers[j].QuestionKey {
			return answers[i].QuestionKey < answers[j].QuestionKey
		}
		return answers[i].Placement < answers[j].Placement
	})

	totals := make(map[string]domain.ScoreDelta)
	for _, a := range answers {
		correct, err := s.questions.CorrectChoice(ctx, a.QuestionKey, locale)
		if err != nil {
			return 0, fmt.Errorf("recompute %s: %w", a.QuestionKey, err)
		}
		result := Score(a.ChoiceKey, correct, a.Placement, s.recorder.scoring.FirstAnswerBonus, s.recorder.scoring.CorrectPoints, s.recorder.scoring.WrongPoints)
		totals[a.PlayerID] = totals[a.PlayerID].Add(result.Delta())
	}

	rewritten := 0
	for playerID, t := range totals {
		t.Score = RoundScore(t.Score)
		if err := s.plays.OverwriteMatchScore(ctx, matchID, locale, playerID, t); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("answers from unsubscribed player skipped", "match_id", matchID, "player_id", playerID)
				continue
			}
			return rewritten, domain.Internal("overwrite match score", err)
		}
		rewritten++
	}
	s.logger.Info("match scores recomputed", "match_id", matchID, "locale", locale, "players", rewritten, "answers", len(answers))
	return rewritten, nil
}

func (s *GameService) getMatch(ctx context.Context, matchID string) (domain.Match, error) {
	m, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Match{}, domain.ErrMatchNotFound
		}
		return domain.Match{}, domain.Internal("load match", err)
	}
	return m, nil
}

// sign returns a signed URL for path, or "" when there is nothing to sign or signing fails.
func (s *GameService) sign(ctx context.Context, path string) string {
	if path == "" || s.signer == nil {
		return ""
	}
	url, err := s.signer.SignedURL(ctx, path)
	if err != nil {
		s.logger.Warn("sign asset url failed", "path", path, "error", err)
		return ""
	}
	return url
}

// required checks name/value pairs and reports the first empty value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return domain.MissingInput(pairs[i])
		}
	}
	return nil
}
