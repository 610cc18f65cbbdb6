package app

import (
	"context"
	"sort"
	"time"

	"crqbank/internal/domain"
)

// Stats is the read model behind the stats page.
type Stats struct {
	domain.Score
	// Cumulative[i] is the running accuracy over answers 0..i, in percent.
	Cumulative []float64
	Topics     []TopicStats
	Persisted  bool
}

type TopicStats struct {
	Topic string
	domain.Score
}

// StatsService aggregates answer history into accuracy figures.
type StatsService struct {
	responses ResponseRepository
	questions QuestionRepository
	timeout   time.Duration
}

func NewStatsService(responses ResponseRepository, questions QuestionRepository, timeout time.Duration) *StatsService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StatsService{responses: responses, questions: questions, timeout: timeout}
}

// Summary uses the durable history for signed-in users and the in-session
// answers otherwise.
func (s *StatsService) Summary(ctx context.Context, session *domain.Session) (Stats, error) {
	if session.Identity == nil {
		entries := make([]entry, 0, len(session.Responses))
		for _, r := range session.Responses {
			entries = append(entries, entry{questionID: r.QuestionID, correct: r.IsCorrect})
		}
		return s.aggregate(ctx, entries), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	history, err := s.responses.History(ctx, session.Identity.UserID)
	if err != nil {
		return Stats{}, err
	}
	entries := make([]entry, 0, len(history))
	for _, r := range history {
		entries = append(entries, entry{questionID: r.QuestionID, correct: r.IsCorrect})
	}
	stats := s.aggregate(ctx, entries)
	stats.Persisted = true
	return stats, nil
}

// CumulativeAccuracy returns the running mean of correctness, in percent.
func CumulativeAccuracy(history []domain.StoredResponse) []float64 {
	flags := make([]bool, len(history))
	for i, r := range history {
		flags[i] = r.IsCorrect
	}
	return runningAccuracy(flags)
}

func runningAccuracy(flags []bool) []float64 {
	out := make([]float64, 0, len(flags))
	correct := 0
	for i, ok := range flags {
		if ok {
			correct++
		}
		out = append(out, domain.NewScore(correct, i+1).Accuracy)
	}
	return out
}

type entry struct {
	questionID int
	correct    bool
}

func (s *StatsService) aggregate(ctx context.Context, entries []entry) Stats {
	var stats Stats
	correct := 0
	flags := make([]bool, len(entries))
	byTopic := make(map[string]*[2]int)
	for i, e := range entries {
		flags[i] = e.correct
		if e.correct {
			correct++
		}

		topic := "Unknown"
		if q, err := s.questions.Get(ctx, e.questionID); err == nil {
			topic = q.Topic
		}
		counts, ok := byTopic[topic]
		if !ok {
			counts = &[2]int{}
			byTopic[topic] = counts
		}
		counts[1]++
		if e.correct {
			counts[0]++
		}
	}
	stats.Score = domain.NewScore(correct, len(entries))
	stats.Cumulative = runningAccuracy(flags)

	for topic, counts := range byTopic {
		stats.Topics = append(stats.Topics, TopicStats{Topic: topic, Score: domain.NewScore(counts[0], counts[1])})
	}
	sort.Slice(stats.Topics, func(i, j int) bool { return stats.Topics[i].Topic < stats.Topics[j].Topic })
	return stats
}
