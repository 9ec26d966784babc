package app_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
)

var epoch = time.Date(2024, 11, 22, 18, 0, 0, 0, time.UTC)

// fakeClock advances instantly on Sleep and remembers every wait.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(epoch)
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []domain.Match
}

func (n *recordingNotifier) MatchUpdated(m domain.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, m)
}

func (n *recordingNotifier) forMatch(matchID string) []domain.Match {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Match
	for _, m := range n.updates {
		if m.ID == matchID {
			out = append(out, m)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []app.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e app.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type prefixSigner struct{}

func (prefixSigner) SignedURL(_ context.Context, path string) (string, error) {
	return "https://cdn.test/" + path + "?sig=1", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// questionBank holds n questions keyed q1..qn, each with choice "a" correct and a 10s limit.
func questionBank(n int) *memory.QuestionRepository {
	contents := make(map[string]domain.QuestionContent, n)
	for i := 1; i <= n; i++ {
		key := fmt.Sprintf("q%d", i)
		contents[key] = domain.QuestionContent{
			Question: domain.Question{Key: key, TimeLimit: 10 * time.Second, AssetPath: "questions/" + key + ".png"},
			Locales: map[string]domain.QuestionChoices{
				"en": {
					QuestionKey: key,
					Locale:      "en",
					Prompt:      "Prompt " + key,
					Choices: []domain.Choice{
						{Key: "a", Text: "Right", Correct: true},
						{Key: "b", Text: "Wrong"},
						{Key: "c", Text: "Also wrong"},
					},
				},
			},
		}
	}
	return memory.NewQuestionRepository(memory.NewStaticQuestionLoader(contents), time.Minute)
}

// liveMatch is a scheduled match whose lobby already closed.
func liveMatch(id string, questions ...string) domain.Match {
	return domain.Match{
		ID:              id,
		QuestionKeys:    questions,
		StartingAt:      epoch.Add(-time.Minute),
		LobbyDuration:   time.Minute,
		ResultTimeLimit: 5 * time.Second,
		Status:          domain.MatchScheduled,
	}
}

type fixture struct {
	svc      *app.GameService
	matches  *memory.MatchRepository
	plays    *memory.PlayStore
	rewards  *memory.RewardRepository
	clock    *fakeClock
	notifier *recordingNotifier
	events   *recordingPublisher
}

func newFixture(cfg app.Config, matches ...domain.Match) *fixture {
	f := &fixture{
		matches:  memory.NewMatchRepository(matches...),
		plays:    memory.NewPlayStore(),
		rewards:  memory.NewRewardRepository(),
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
	}
	f.svc = app.NewGameService(app.Deps{
		Matches:   f.matches,
		Questions: questionBank(5),
		Plays:     f.plays,
		Rewards:   f.rewards,
		Signer:    prefixSigner{},
		Notifier:  f.notifier,
		Events:    f.events,
		Clock:     f.clock,
		Logger:    discardLogger(),
	}, cfg)
	return f
}

func (f *fixture) subscribe(ctx context.Context, matchID string, players ...string) error {
	for _, p := range players {
		if _, err := f.svc.SubscribePlayer(ctx, matchID, p, "en", domain.DisplayInfo{Nickname: "nick-" + p}); err != nil {
			return err
		}
	}
	return nil
}

func answer(matchID, playerID, questionKey, choice string) app.AnswerRequest {
	return app.AnswerRequest{
		MatchID:     matchID,
		PlayerID:    playerID,
		PlayerName:  "nick-" + playerID,
		QuestionKey: questionKey,
		ChoiceKey:   choice,
		Locale:      "en",
	}
}
