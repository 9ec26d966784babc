package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-live-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, questionKey string) (domain.QuestionContent, error)
}

// QuestionCache caches question content in Redis (hash per question) and falls back to a
// loader on cache miss. Content is stored as:
//
//	HSET trivia:question:{key} meta          {question json}
//	HSET trivia:question:{key} locale:{code} {choices json}
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

const (
	metaField    = "meta"
	localePrefix = "locale:"
)

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetQuestion(ctx context.Context, questionKey string) (domain.Question, error) {
	content, err := c.LoadQuestion(ctx, questionKey)
	if err != nil {
		return domain.Question{}, err
	}
	return content.Question, nil
}

func (c *QuestionCache) GetChoices(ctx context.Context, questionKey, locale string) (domain.QuestionChoices, error) {
	content, err := c.LoadQuestion(ctx, questionKey)
	if err != nil {
		return domain.QuestionChoices{}, err
	}
	return content.Choices(locale)
}

func (c *QuestionCache) CorrectChoice(ctx context.Context, questionKey, locale string) (string, error) {
	choices, err := c.GetChoices(ctx, questionKey, locale)
	if err != nil {
		return "", err
	}
	return choices.CorrectChoiceKey()
}

// LoadQuestion returns cached content or loads and caches it. Concurrent misses for the
// same key share one load.
func (c *QuestionCache) LoadQuestion(ctx context.Context, questionKey string) (domain.QuestionContent, error) {
	key := questionCacheKey(questionKey)
	if content, ok := c.cached(ctx, key); ok {
		return content, nil
	}

	result, err, _ := c.sf.Do(questionKey, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if content, ok := c.cached(ctx, key); ok {
			return content, nil
		}

		content, err := c.loader.LoadQuestion(ctx, questionKey)
		if err != nil {
			return domain.QuestionContent{}, err
		}

		meta, err := json.Marshal(content.Question)
		if err != nil {
			return domain.QuestionContent{}, err
		}
		pipe := c.client.Pipeline()
		pipe.HSet(ctx, key, metaField, meta)
		for locale, choices := range content.Locales {
			raw, err := json.Marshal(choices)
			if err != nil {
				return domain.QuestionContent{}, err
			}
			pipe.HSet(ctx, key, localePrefix+locale, raw)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// A failed write only costs another load later.
		_, _ = pipe.Exec(ctx)

		return content, nil
	})
	if err != nil {
		return domain.QuestionContent{}, err
	}
	return result.(domain.QuestionContent), nil
}

func (c *QuestionCache) cached(ctx context.Context, key string) (domain.QuestionContent, bool) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil || fields[metaField] == "" {
		return domain.QuestionContent{}, false
	}
	var content domain.QuestionContent
	if err := json.Unmarshal([]byte(fields[metaField]), &content.Question); err != nil {
		return domain.QuestionContent{}, false
	}
	content.Locales = make(map[string]domain.QuestionChoices, len(fields)-1)
	for field, raw := range fields {
		locale, ok := strings.CutPrefix(field, localePrefix)
		if !ok {
			continue
		}
		var choices domain.QuestionChoices
		if err := json.Unmarshal([]byte(raw), &choices); err != nil {
			return domain.QuestionContent{}, false
		}
		content.Locales[locale] = choices
	}
	return content, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
