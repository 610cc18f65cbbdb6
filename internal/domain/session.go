package domain

import "time"

// Status is the lifecycle stage of the quiz held by a session.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusSubmitted  Status = "submitted"
)

// Session is the per-browser state. It is loaded, mutated by exactly one
// action and saved again; it never outlives its repository entry.
type Session struct {
	ID          string      `json:"id"`
	Identity    *Identity   `json:"identity,omitempty"`
	Entitled    bool        `json:"entitled"`
	Quiz        *QuizConfig `json:"quiz,omitempty"`
	Cursor      int         `json:"cursor"`
	Responses   []Response  `json:"responses"`
	StartedAt   time.Time   `json:"startedAt"`
	Submitted   bool        `json:"submitted"`
	CheckoutURL string      `json:"checkoutUrl,omitempty"`
	Notice      string      `json:"notice,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Session) Clone() *Session {
	c := *s
	if s.Identity != nil {
		id := *s.Identity
		c.Identity = &id
	}
	if s.Quiz != nil {
		q := *s.Quiz
		q.QuestionOrder = append([]int(nil), s.Quiz.QuestionOrder...)
		c.Quiz = &q
	}
	c.Responses = append([]Response(nil), s.Responses...)
	return &c
}

func (s *Session) Status() Status {
	switch {
	case s.Quiz == nil:
		return StatusNotStarted
	case s.Submitted:
		return StatusSubmitted
	case len(s.Responses) == len(s.Quiz.QuestionOrder):
		return StatusComplete
	default:
		return StatusInProgress
	}
}

// Begin installs a new quiz configuration and resets progress.
func (s *Session) Begin(cfg QuizConfig, now time.Time) error {
	if s.Quiz != nil {
		return ErrQuizInProgress
	}
	if len(cfg.QuestionOrder) == 0 {
		return ErrNoQuestions
	}
	s.Quiz = &cfg
	s.Cursor = 0
	s.Responses = nil
	s.Submitted = false
	s.StartedAt = time.Time{}
	if cfg.ReviewMode == ReviewTest {
		s.StartedAt = now
	}
	return nil
}

// CurrentQuestionID returns the question id under the cursor.
func (s *Session) CurrentQuestionID() (int, error) {
	if s.Quiz == nil || len(s.Quiz.QuestionOrder) == 0 {
		return 0, ErrQuizNotStarted
	}
	return s.Quiz.QuestionOrder[s.Cursor], nil
}

// Answered returns the recorded response at index i, if any.
func (s *Session) Answered(i int) (Response, bool) {
	if i < 0 || i >= len(s.Responses) {
		return Response{}, false
	}
	return s.Responses[i], true
}

// Record appends the answer for the cursor. Each index is answerable once.
func (s *Session) Record(resp Response) error {
	if s.Quiz == nil {
		return ErrQuizNotStarted
	}
	if s.Submitted {
		return ErrQuizSubmitted
	}
	if len(s.Responses) != s.Cursor || len(s.Responses) >= len(s.Quiz.QuestionOrder) {
		return ErrAlreadyAnswered
	}
	s.Responses = append(s.Responses, resp)
	return nil
}

// Advance moves the cursor by direction. It never leaves the question range
// and never passes the first unanswered question.
func (s *Session) Advance(direction int) int {
	if s.Quiz == nil {
		return s.Cursor
	}
	upper := len(s.Quiz.QuestionOrder) - 1
	if len(s.Responses) < upper {
		upper = len(s.Responses)
	}
	next := s.Cursor + direction
	if next > upper {
		next = upper
	}
	if next < 0 {
		next = 0
	}
	s.Cursor = next
	return next
}

func (s *Session) CanGoBack() bool {
	return s.Quiz != nil && s.Cursor > 0
}

func (s *Session) CanGoForward() bool {
	if s.Quiz == nil {
		return false
	}
	return s.Cursor < len(s.Quiz.QuestionOrder)-1 && s.Cursor < len(s.Responses)
}

// Submit freezes a complete quiz and returns its score.
func (s *Session) Submit() (Score, error) {
	switch s.Status() {
	case StatusNotStarted:
		return Score{}, ErrQuizNotStarted
	case StatusSubmitted:
		return Score{}, ErrQuizSubmitted
	case StatusInProgress:
		return Score{}, ErrQuizIncomplete
	}
	s.Submitted = true
	return s.Score(), nil
}

// Score counts correct answers against the quiz length.
func (s *Session) Score() Score {
	correct := 0
	for _, r := range s.Responses {
		if r.IsCorrect {
			correct++
		}
	}
	total := len(s.Responses)
	if s.Quiz != nil {
		total = len(s.Quiz.QuestionOrder)
	}
	return NewScore(correct, total)
}

// ResetQuiz drops quiz progress; identity and entitlement are kept.
func (s *Session) ResetQuiz() {
	s.Quiz = nil
	s.Cursor = 0
	s.Responses = nil
	s.StartedAt = time.Time{}
	s.Submitted = false
}

// Clear returns the session to a blank state, as on sign-out.
func (s *Session) Clear() {
	s.ResetQuiz()
	s.Identity = nil
	s.Entitled = false
	s.CheckoutURL = ""
	s.Notice = ""
}

// Elapsed is the wall-clock time since a test-mode quiz started.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// TakeNotice returns and clears the pending one-shot message.
func (s *Session) TakeNotice() string {
	n := s.Notice
	s.Notice = ""
	return n
}
