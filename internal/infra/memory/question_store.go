package memory

import (
	"context"
	"sort"
	"sync"

	"crqbank/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionSource reads the question bank from a backing store (CSV, Postgres).
type QuestionSource interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionStore loads the bank once per process and serves it read-only.
// Concurrent first loads share one source read.
type QuestionStore struct {
	source QuestionSource
	sf     singleflight.Group

	mu        sync.RWMutex
	loaded    bool
	questions []domain.Question
	topics    []domain.TopicCount
}

func NewQuestionStore(source QuestionSource) *QuestionStore {
	return &QuestionStore{source: source}
}

// Preload forces the one-time load; call it at startup so a bad source is fatal.
func (s *QuestionStore) Preload(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

func (s *QuestionStore) All(ctx context.Context) ([]domain.Question, error) {
	return s.load(ctx)
}

func (s *QuestionStore) Get(ctx context.Context, id int) (domain.Question, error) {
	questions, err := s.load(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	if id < 0 || id >= len(questions) || questions[id].ID != id {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questions[id], nil
}

func (s *QuestionStore) Topics(ctx context.Context) ([]domain.TopicCount, error) {
	if _, err := s.load(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TopicCount(nil), s.topics...), nil
}

func (s *QuestionStore) load(ctx context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	if s.loaded {
		questions := s.questions
		s.mu.RUnlock()
		return questions, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do("questions", func() (interface{}, error) {
		s.mu.RLock()
		if s.loaded {
			questions := s.questions
			s.mu.RUnlock()
			return questions, nil
		}
		s.mu.RUnlock()

		questions, err := s.source.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.questions = questions
		s.topics = countTopics(questions)
		s.loaded = true
		s.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func countTopics(questions []domain.Question) []domain.TopicCount {
	counts := make(map[string]int)
	for _, q := range questions {
		counts[q.Topic]++
	}
	out := make([]domain.TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, domain.TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// StaticQuestionSource serves a fixed slice (useful for tests/demos).
type StaticQuestionSource struct {
	questions []domain.Question
}

func NewStaticQuestionSource(questions []domain.Question) *StaticQuestionSource {
	return &StaticQuestionSource{questions: questions}
}

func (l *StaticQuestionSource) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	if len(l.questions) == 0 {
		return nil, &domain.LoadError{Source: "static", Err: domain.ErrNoQuestions}
	}
	return l.questions, nil
}
