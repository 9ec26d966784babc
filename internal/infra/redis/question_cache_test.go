package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, client := newTestRedis(t)

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string]domain.QuestionContent{
			"q1": sampleQuestion(),
		}),
	}
	cache := NewQuestionCache(client, loader, time.Minute)
	ctx := context.Background()

	correct, err := cache.CorrectChoice(ctx, "q1", "en")
	if err != nil {
		t.Fatalf("correct choice: %v", err)
	}
	if correct != "o2" {
		t.Fatalf("expected o2, got %s", correct)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("trivia:question:q1") {
		t.Fatalf("expected question hash in redis")
	}
	if ttl := mr.TTL("trivia:question:q1"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("expected jittered ttl, got %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	q, _ := cache.GetQuestion(ctx, "q1")
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if q.TimeLimit != 20*time.Second {
		t.Fatalf("expected cached time limit, got %s", q.TimeLimit)
	}
	choices, err := cache.GetChoices(ctx, "q1", "fr")
	if err != nil || choices.Prompt != "Combien font 2 + 2 ?" {
		t.Fatalf("unexpected cached french choices %+v %v", choices, err)
	}
}

func TestQuestionCacheMissingQuestion(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewQuestionCache(client, memory.NewStaticQuestionLoader(nil), time.Minute)

	_, err := cache.GetQuestion(context.Background(), "nope")
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuestion(ctx context.Context, questionKey string) (domain.QuestionContent, error) {
	l.calls.Add(1)
	return l.QuestionLoader.LoadQuestion(ctx, questionKey)
}

func sampleQuestion() domain.QuestionContent {
	return domain.QuestionContent{
		Question: domain.Question{Key: "q1", TimeLimit: 20 * time.Second},
		Locales: map[string]domain.QuestionChoices{
			"en": {
				QuestionKey: "q1",
				Locale:      "en",
				Prompt:      "What is 2 + 2?",
				Choices: []domain.Choice{
					{Key: "o1", Text: "3"},
					{Key: "o2", Text: "4", Correct: true},
				},
			},
			"fr": {
				QuestionKey: "q1",
				Locale:      "fr",
				Prompt:      "Combien font 2 + 2 ?",
				Choices: []domain.Choice{
					{Key: "o1", Text: "3"},
					{Key: "o2", Text: "4", Correct: true},
				},
			},
		},
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
