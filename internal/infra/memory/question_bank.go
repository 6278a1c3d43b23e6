package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tracing-quiz-service/internal/domain"
)

// QuestionLoader fetches a category's questions from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, category domain.Category) ([]domain.Question, error)
}

// QuestionBank caches question sequences with TTL to avoid repeated loader hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[domain.Category]cachedBank
}

type cachedBank struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.Category]cachedBank),
	}
}

func (b *QuestionBank) Questions(ctx context.Context, category domain.Category) ([]domain.Question, error) {
	if questions, ok := b.cached(category); ok {
		return questions, nil
	}

	result, err, _ := b.sf.Do(string(category), func() (interface{}, error) {
		if questions, ok := b.cached(category); ok {
			return questions, nil
		}

		questions, err := b.loader.LoadQuestions(ctx, category)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrEmptyQuestionBank, category)
		}

		expiresAt := b.clock().Add(b.ttlWithJitter())
		b.mu.Lock()
		b.cache[category] = cachedBank{questions: questions, expiresAt: expiresAt}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) cached(category domain.Category) ([]domain.Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.cache[category]
	if !ok || !entry.expiresAt.After(b.clock()) {
		return nil, false
	}
	return entry.questions, true
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	banks map[domain.Category][]domain.Question
}

func NewStaticQuestionLoader(banks map[domain.Category][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{banks: banks}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, category domain.Category) ([]domain.Question, error) {
	if questions, ok := l.banks[category]; ok {
		return questions, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
}
