package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-live-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, questionKey string) (domain.QuestionContent, error)
}

// QuestionRepository caches question content with TTL to avoid repeated DB hits while
// hundreds of players answer the same question.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	content   domain.QuestionContent
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestion),
	}
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, questionKey string) (domain.Question, error) {
	content, err := r.content(ctx, questionKey)
	if err != nil {
		return domain.Question{}, err
	}
	return content.Question, nil
}

func (r *QuestionRepository) GetChoices(ctx context.Context, questionKey, locale string) (domain.QuestionChoices, error) {
	content, err := r.content(ctx, questionKey)
	if err != nil {
		return domain.QuestionChoices{}, err
	}
	return content.Choices(locale)
}

func (r *QuestionRepository) CorrectChoice(ctx context.Context, questionKey, locale string) (string, error) {
	choices, err := r.GetChoices(ctx, questionKey, locale)
	if err != nil {
		return "", err
	}
	return choices.CorrectChoiceKey()
}

// LoadQuestion lets the cache sit in front of another cache layer.
func (r *QuestionRepository) LoadQuestion(ctx context.Context, questionKey string) (domain.QuestionContent, error) {
	return r.content(ctx, questionKey)
}

func (r *QuestionRepository) content(ctx context.Context, questionKey string) (domain.QuestionContent, error) {
	if content, ok := r.cached(questionKey); ok {
		return content, nil
	}

	result, err, _ := r.sf.Do(questionKey, func() (interface{}, error) {
		if content, ok := r.cached(questionKey); ok {
			return content, nil
		}

		content, err := r.loader.LoadQuestion(ctx, questionKey)
		if err != nil {
			return domain.QuestionContent{}, err
		}

		r.mu.Lock()
		r.cache[questionKey] = cachedQuestion{
			content:   content,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.QuestionContent{}, err
	}
	return result.(domain.QuestionContent), nil
}

func (r *QuestionRepository) cached(questionKey string) (domain.QuestionContent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[questionKey]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.QuestionContent{}, false
	}
	return entry.content, true
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	questions map[string]domain.QuestionContent
}

func NewStaticQuestionLoader(questions map[string]domain.QuestionContent) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestion(_ context.Context, questionKey string) (domain.QuestionContent, error) {
	if content, ok := l.questions[questionKey]; ok {
		return content, nil
	}
	return domain.QuestionContent{}, domain.ErrQuestionNotFound
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
