package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/postgres"
	pgmigrations "trivia-live-service/internal/infra/postgres/migrations"
	infraredis "trivia-live-service/internal/infra/redis"
)

func TestMatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	loader := postgres.NewQuestionLoader(pool)
	for _, q := range sampleQuestions() {
		if err := loader.SaveQuestion(ctx, q); err != nil {
			t.Fatalf("seed question: %v", err)
		}
	}
	rewards := postgres.NewRewardRepository(pool)
	if err := rewards.PutReward(ctx, sampleReward()); err != nil {
		t.Fatalf("seed reward: %v", err)
	}

	clock := &steppingClock{now: time.Now().UTC()}
	matches := postgres.NewMatchRepository(pool)
	service := app.NewGameService(app.Deps{
		Matches:   matches,
		Questions: infraredis.NewQuestionCache(redisClient, loader, 5*time.Minute),
		Plays:     infraredis.NewPlayStore(redisClient),
		Rewards:   rewards,
		Notifier:  infraredis.NewSynchroStore(redisClient, time.Hour, nil),
		Clock:     clock,
	}, app.DefaultConfig())

	if _, err := service.ScheduleMatch(ctx, domain.Match{
		ID:              "match-1",
		QuestionKeys:    []string{"q1", "q2"},
		StartingAt:      clock.Now(),
		LobbyDuration:   time.Second,
		ResultTimeLimit: 5 * time.Second,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	for _, p := range []string{"alice", "bob"} {
		if _, err := service.SubscribePlayer(ctx, "match-1", p, "en", domain.DisplayInfo{Nickname: p}); err != nil {
			t.Fatalf("subscribe %s: %v", p, err)
		}
	}

	first, err := service.SubmitAnswer(ctx, answer("bob", "q1", "o2"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !first.IsCorrect || first.Placement != 1 || first.Score != 350 {
		t.Fatalf("expected first correct answer worth 350, got %+v", first)
	}
	second, err := service.SubmitAnswer(ctx, answer("alice", "q1", "o1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if second.IsCorrect || second.Placement != 2 || second.Score != 5 {
		t.Fatalf("expected second wrong answer worth 5, got %+v", second)
	}
	if _, err := service.SubmitAnswer(ctx, answer("bob", "q1", "o1")); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected duplicate rejected, got %v", err)
	}

	lb, err := service.GetLeaderboard(ctx, domain.MatchScope("match-1", "en"), "alice")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].PlayerID != "bob" || !lb.Entries[1].IsPlayer {
		t.Fatalf("expected bob leading, got %+v", lb.Entries)
	}

	reward, err := service.GetReward(ctx, "match-1", "bob", "en")
	if err != nil || reward == nil || reward.Tier != domain.TierPremium {
		t.Fatalf("expected premium reward, got %+v %v", reward, err)
	}

	result, err := service.RunDueMatches(ctx)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if len(result.Completed) != 1 {
		t.Fatalf("expected match completed, got %+v", result)
	}
	m, err := service.GetMatch(ctx, "match-1")
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if m.Status != domain.MatchCompleted || m.IsLocked || !m.Synchro.MatchOver || m.Synchro.CurrentQuestionNumber != 2 {
		t.Fatalf("unexpected final match %+v", m)
	}
}

func TestClaimMatchOnlyOnce(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewMatchRepository(pool)
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.ScheduleMatch(ctx, domain.Match{ID: "m1", QuestionKeys: []string{"q1"}, StartingAt: now}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := repo.ScheduleMatch(ctx, domain.Match{ID: "m1", QuestionKeys: []string{"q1"}, StartingAt: now}); !errors.Is(err, domain.ErrMatchExists) {
		t.Fatalf("expected match exists, got %v", err)
	}

	const runners = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners []string
	)
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := fmt.Sprintf("runner-%d", i)
			claim, err := repo.ClaimMatch(ctx, "m1", owner, now, now.Add(time.Minute))
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if claim.Claimed {
				mu.Lock()
				owners = append(owners, owner)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(owners) != 1 {
		t.Fatalf("expected exactly one claim, got %v", owners)
	}

	err = repo.SaveProgress(ctx, "m1", "intruder", domain.MatchProgress{Status: domain.MatchPlaying, IsLocked: true})
	if !errors.Is(err, domain.ErrLeaseLost) {
		t.Fatalf("expected lease lost for non-owner, got %v", err)
	}
	err = repo.SaveProgress(ctx, "m1", owners[0], domain.MatchProgress{
		Status:     domain.MatchPlaying,
		Synchro:    domain.SynchroData{IsStarted: true, CurrentQuestionNumber: 1},
		IsLocked:   true,
		LeaseUntil: now.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("owner save: %v", err)
	}
	if err := repo.SaveProgress(ctx, "m1", owners[0], domain.MatchProgress{Status: domain.MatchReady, IsLocked: true}); !errors.Is(err, domain.ErrLeaseLost) {
		t.Fatalf("expected backward transition refused, got %v", err)
	}

	later := now.Add(time.Hour)
	stalled, err := repo.StalledMatches(ctx, later)
	if err != nil || len(stalled) != 1 {
		t.Fatalf("expected one stalled match, got %d err=%v", len(stalled), err)
	}
	takeover, err := repo.ClaimMatch(ctx, "m1", "rescuer", later, later.Add(time.Minute))
	if err != nil || !takeover.Claimed {
		t.Fatalf("expected takeover, got %+v err=%v", takeover, err)
	}
	if takeover.Match.Status != domain.MatchPlaying || takeover.Match.Synchro.CurrentQuestionNumber != 1 {
		t.Fatalf("takeover must keep progress, got %+v", takeover.Match)
	}
}

// steppingClock jumps forward on Sleep so match runs finish instantly.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

func answer(playerID, questionKey, choice string) app.AnswerRequest {
	return app.AnswerRequest{
		MatchID:     "match-1",
		PlayerID:    playerID,
		PlayerName:  playerID,
		QuestionKey: questionKey,
		ChoiceKey:   choice,
		Locale:      "en",
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuestions() []domain.QuestionContent {
	choices := func(key string) map[string]domain.QuestionChoices {
		return map[string]domain.QuestionChoices{
			"en": {
				Prompt: "What is 2 + 2? (" + key + ")",
				Choices: []domain.Choice{
					{Key: "o1", Text: "3"},
					{Key: "o2", Text: "4", Correct: true},
					{Key: "o3", Text: "5"},
				},
			},
		}
	}
	return []domain.QuestionContent{
		{Question: domain.Question{Key: "q1", TimeLimit: 10 * time.Second}, Locales: choices("q1")},
		{Question: domain.Question{Key: "q2", TimeLimit: 10 * time.Second}, Locales: choices("q2")},
	}
}

func sampleReward() domain.Reward {
	return domain.Reward{
		MatchID:   "match-1",
		Locale:    "en",
		LoyaltyID: "loyal-1",
		Standard:  domain.RewardTier{Name: "fries"},
		Premium:   domain.RewardTier{Name: "burger"},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
