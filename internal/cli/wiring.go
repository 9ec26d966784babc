package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/blob"
	"trivia-live-service/internal/infra/kafka"
	"trivia-live-service/internal/infra/memory"
	"trivia-live-service/internal/infra/postgres"
	redisstore "trivia-live-service/internal/infra/redis"
)

// backend holds the stores and clients one process runs on.
// Without redis or postgres configured it falls back to in-memory stores.
type backend struct {
	cfg     config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	redis   *redis.Client
	synchro *redisstore.SynchroStore

	matches   app.MatchRepository
	questions app.QuestionRepository
	plays     app.PlayStore
	rewards   app.RewardRepository
	signer    app.URLSigner
	events    app.EventPublisher

	closers []func() error
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{cfg: cfg, logger: logger}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
	}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, b.redis.Close)
		b.synchro = redisstore.NewSynchroStore(b.redis, config.TTLDuration(cfg.Redis.SynchroTTL, time.Hour), logger)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if b.pool != nil {
		loader = postgres.NewQuestionLoader(b.pool)
	}
	if b.redis != nil {
		b.questions = redisstore.NewQuestionCache(b.redis, loader, questionTTL)
		b.plays = redisstore.NewPlayStore(b.redis)
	} else {
		b.questions = memory.NewQuestionRepository(loader, questionTTL)
		b.plays = memory.NewPlayStore()
	}

	if b.pool != nil {
		b.matches = postgres.NewMatchRepository(b.pool)
		b.rewards = postgres.NewRewardRepository(b.pool)
	} else {
		logger.Warn("postgres not configured, matches and rewards live in memory")
		b.matches = memory.NewMatchRepository(sampleMatch(time.Now()))
		b.rewards = memory.NewRewardRepository()
	}

	if cfg.Blob.Bucket != "" {
		signer, err := blob.NewSigner(ctx, blob.Options{
			Endpoint:        cfg.Blob.Endpoint,
			Region:          cfg.Blob.Region,
			Bucket:          cfg.Blob.Bucket,
			AccessKeyID:     cfg.Blob.AccessKeyID,
			SecretAccessKey: cfg.Blob.SecretAccessKey,
			Expiry:          cfg.Blob.URLExpiry,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.signer = signer
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			b.Close()
			return nil, err
		}
		pub := kafka.NewPublisher(producer, cfg.Kafka.Topic, logger)
		b.events = pub
		b.closers = append(b.closers, pub.Close)
	} else {
		b.events = kafka.NewLogPublisher(logger)
	}
	return b, nil
}

// service builds the game service on top of the backend. notifier may be nil.
func (b *backend) service(notifier app.Notifier) *app.GameService {
	return app.NewGameService(app.Deps{
		Matches:   b.matches,
		Questions: b.questions,
		Plays:     b.plays,
		Rewards:   b.rewards,
		Signer:    b.signer,
		Notifier:  notifier,
		Events:    b.events,
		Logger:    b.logger,
	}, gameConfig(b.cfg))
}

// Close releases clients in reverse order of opening.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Warn("close backend", "error", err)
		}
	}
	b.closers = nil
}

func gameConfig(cfg config.Config) app.Config {
	return app.Config{
		Scoring: app.ScoringConfig{
			FirstAnswerBonus: cfg.Scoring.FirstAnswerBonus,
			CorrectPoints:    cfg.Scoring.CorrectPoints,
			WrongPoints:      cfg.Scoring.WrongPoints,
		},
		Lifecycle: app.LifecycleConfig{
			Lead:              cfg.Match.Lead,
			Lobby:             cfg.Match.Lobby,
			QuestionTimeLimit: cfg.Match.QuestionTimeLimit,
			LeaseGrace:        cfg.Match.LeaseGrace,
			RunTimeout:        cfg.Match.RunTimeout,
			MaxConcurrent:     cfg.Match.MaxConcurrent,
		},
		LeaderboardTop:   cfg.Leaderboard.Top,
		RewardRankCutoff: cfg.Reward.RankCutoff,
	}
}

// fanout sends each synchro update to several notifiers.
type fanout []app.Notifier

func (f fanout) MatchUpdated(m domain.Match) {
	for _, n := range f {
		n.MatchUpdated(m)
	}
}

// sampleQuestions backs the in-memory mode so the service is playable without a database.
func sampleQuestions() map[string]domain.QuestionContent {
	mk := func(key, prompt string, correct int, options ...string) domain.QuestionContent {
		choices := make([]domain.Choice, len(options))
		for i, o := range options {
			choices[i] = domain.Choice{Key: fmt.Sprintf("%s-o%d", key, i+1), Text: o, Correct: i == correct}
		}
		return domain.QuestionContent{
			Question: domain.Question{Key: key, TimeLimit: 10 * time.Second},
			Locales: map[string]domain.QuestionChoices{
				"en": {QuestionKey: key, Locale: "en", Prompt: prompt, Choices: choices},
			},
		}
	}
	return map[string]domain.QuestionContent{
		"sample-1": mk("sample-1", "What is 2 + 2?", 1, "3", "4", "5"),
		"sample-2": mk("sample-2", "Which planet is closest to the sun?", 0, "Mercury", "Venus", "Mars"),
		"sample-3": mk("sample-3", "How many minutes are in an hour?", 2, "30", "100", "60"),
	}
}

func sampleMatch(now time.Time) domain.Match {
	return domain.Match{
		ID:            "sample",
		QuestionKeys:  []string{"sample-1", "sample-2", "sample-3"},
		StartingAt:    now.Add(2 * time.Minute).Truncate(time.Second),
		LobbyDuration: time.Minute,
		Status:        domain.MatchScheduled,
	}
}
