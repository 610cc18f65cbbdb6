package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"crqbank/internal/domain"
	"crqbank/internal/metrics"
)

// AllTopics is the topic filter value that selects the whole bank.
const AllTopics = "All"

// DefaultTrialSize is the number of questions in a free trial.
const DefaultTrialSize = 5

// QuestionRepository serves the loaded question bank.
type QuestionRepository interface {
	All(ctx context.Context) ([]domain.Question, error)
	Get(ctx context.Context, id int) (domain.Question, error)
	Topics(ctx context.Context) ([]domain.TopicCount, error)
}

// ResponseRepository is the durable answer log.
type ResponseRepository interface {
	Record(ctx context.Context, resp domain.StoredResponse) error
	History(ctx context.Context, userID string) ([]domain.StoredResponse, error)
}

// QuizService contains the practice use cases. Every method mutates the
// session it is given; callers persist it through SessionManager.
type QuizService struct {
	questions QuestionRepository
	responses ResponseRepository
	events    EventPublisher
	trialSize int
	timeout   time.Duration
	now       func() time.Time
}

// Options tunes a QuizService; zero values fall back to defaults.
type Options struct {
	TrialSize int
	Timeout   time.Duration
	Events    EventPublisher
	Clock     func() time.Time
}

func NewQuizService(questions QuestionRepository, responses ResponseRepository, opts Options) *QuizService {
	s := &QuizService{
		questions: questions,
		responses: responses,
		events:    opts.Events,
		trialSize: opts.TrialSize,
		timeout:   opts.Timeout,
		now:       opts.Clock,
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	if s.trialSize <= 0 {
		s.trialSize = DefaultTrialSize
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Topics lists topic names with their question counts.
func (s *QuizService) Topics(ctx context.Context) ([]domain.TopicCount, error) {
	return s.questions.Topics(ctx)
}

// Start selects, shuffles and (for the free trial) truncates the questions
// of topic, then installs the quiz on the session.
func (s *QuizService) Start(ctx context.Context, session *domain.Session, topic string, mode domain.Mode, review domain.ReviewMode) error {
	if session.Quiz != nil {
		return domain.ErrQuizInProgress
	}
	all, err := s.questions.All(ctx)
	if err != nil {
		return err
	}

	topic = strings.TrimSpace(topic)
	ids := make([]int, 0, len(all))
	for _, q := range all {
		if topic == "" || topic == AllTopics || q.Topic == topic {
			ids = append(ids, q.ID)
		}
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if mode == domain.ModeFreeTrial && len(ids) > s.trialSize {
		ids = ids[:s.trialSize]
	}
	if topic == "" {
		topic = AllTopics
	}

	if err := session.Begin(domain.QuizConfig{
		Mode:          mode,
		ReviewMode:    review,
		Topic:         topic,
		QuestionOrder: ids,
	}, s.now()); err != nil {
		return err
	}
	metrics.QuizzesStarted.WithLabelValues(string(mode)).Inc()
	return nil
}

// Current returns the question under the session cursor.
func (s *QuizService) Current(ctx context.Context, session *domain.Session) (domain.Question, error) {
	id, err := session.CurrentQuestionID()
	if err != nil {
		return domain.Question{}, err
	}
	return s.questions.Get(ctx, id)
}

// AnswerOutcome describes a recorded answer. Warning is set when the answer
// was kept in the session but could not be written durably.
type AnswerOutcome struct {
	Response domain.Response
	Question domain.Question
	Warning  error
}

// Answer records the selected letter for the current question.
func (s *QuizService) Answer(ctx context.Context, session *domain.Session, letter string) (AnswerOutcome, error) {
	selected, err := domain.ParseOption(letter)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if session.Quiz == nil {
		return AnswerOutcome{}, domain.ErrQuizNotStarted
	}
	if needsEntitlement(session) {
		return AnswerOutcome{}, domain.ErrEntitlementRequired
	}
	question, err := s.Current(ctx, session)
	if err != nil {
		return AnswerOutcome{}, err
	}

	resp := domain.Response{
		QuestionID: question.ID,
		Prompt:     question.Prompt,
		Selected:   selected,
		Correct:    question.Answer,
		IsCorrect:  selected == question.Answer,
	}
	if err := session.Record(resp); err != nil {
		return AnswerOutcome{}, err
	}
	metrics.AnswersTotal.WithLabelValues(metrics.BoolLabel(resp.IsCorrect)).Inc()

	outcome := AnswerOutcome{Response: resp, Question: question}
	if session.Identity == nil {
		return outcome, nil
	}
	stored := domain.StoredResponse{
		UserID:     session.Identity.UserID,
		QuestionID: question.ID,
		Question:   question.Prompt,
		Selected:   selected,
		IsCorrect:  resp.IsCorrect,
		CreatedAt:  s.now(),
	}
	if err := s.record(ctx, stored); err != nil {
		log.Printf("record response for user %s: %v", stored.UserID, err)
		metrics.PersistenceFailures.Inc()
		outcome.Warning = err
		return outcome, nil
	}
	s.publish(ctx, EventResponseRecorded, stored)
	return outcome, nil
}

func (s *QuizService) record(ctx context.Context, resp domain.StoredResponse) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.responses.Record(ctx, resp); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}
	return nil
}

// Advance moves the cursor one step back (negative) or forward (positive).
func (s *QuizService) Advance(session *domain.Session, direction int) error {
	if session.Quiz == nil {
		return domain.ErrQuizNotStarted
	}
	switch {
	case direction > 0:
		session.Advance(1)
	case direction < 0:
		session.Advance(-1)
	}
	return nil
}

// Submit finalises a complete quiz.
func (s *QuizService) Submit(ctx context.Context, session *domain.Session) (domain.Score, error) {
	score, err := session.Submit()
	if err != nil {
		return domain.Score{}, err
	}
	metrics.QuizzesSubmitted.Inc()
	payload := map[string]any{"sessionId": session.ID, "score": score}
	if session.Identity != nil {
		payload["userId"] = session.Identity.UserID
	}
	s.publish(ctx, EventQuizSubmitted, payload)
	return score, nil
}

// Reset discards the in-memory quiz. Persisted history is untouched.
func (s *QuizService) Reset(session *domain.Session) {
	session.ResetQuiz()
}

func (s *QuizService) publish(ctx context.Context, key string, payload any) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.events.Publish(ctx, key, payload); err != nil {
		log.Printf("publish %s: %v", key, err)
	}
}

func needsEntitlement(session *domain.Session) bool {
	return session.Quiz != nil && session.Quiz.Mode == domain.ModeFullQuiz && !session.Entitled
}

// PracticeView is the read model behind the practice page.
type PracticeView struct {
	Status    domain.Status
	Config    *domain.QuizConfig
	Number    int
	Total     int
	Question  domain.Question
	Answered  bool
	Selected  domain.Option
	IsCorrect bool
	Reveal    bool
	ShowClock bool
	Elapsed   string
	CanBack   bool
	CanNext   bool
	Score     domain.Score
	Responses []domain.Response
}

// View builds the practice read model for the session's current state.
func (s *QuizService) View(ctx context.Context, session *domain.Session) (PracticeView, error) {
	view := PracticeView{Status: session.Status(), Config: session.Quiz}
	if session.Quiz == nil {
		return view, nil
	}
	question, err := s.Current(ctx, session)
	if err != nil {
		return view, err
	}
	view.Number = session.Cursor + 1
	view.Total = len(session.Quiz.QuestionOrder)
	view.Question = question
	view.CanBack = session.CanGoBack()
	view.CanNext = session.CanGoForward()

	if resp, ok := session.Answered(session.Cursor); ok {
		view.Answered = true
		view.Selected = resp.Selected
		view.IsCorrect = resp.IsCorrect
		view.Reveal = session.Quiz.ReviewMode == domain.ReviewTutor
	}
	if session.Quiz.ReviewMode == domain.ReviewTest && !session.Submitted {
		view.ShowClock = true
		view.Elapsed = FormatElapsed(session.Elapsed(s.now()))
	}
	if session.Submitted {
		view.Score = session.Score()
		view.Responses = append([]domain.Response(nil), session.Responses...)
	}
	return view, nil
}

// FormatElapsed renders a duration as mm:ss.
func FormatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
