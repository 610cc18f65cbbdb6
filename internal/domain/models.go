package domain

import (
	"strings"
	"time"
)

// Option is an answer letter, always upper-case (A-D).
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Options lists the answer letters in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// ParseOption accepts a/b/c/d in any case.
func ParseOption(raw string) (Option, error) {
	switch opt := Option(strings.ToUpper(strings.TrimSpace(raw))); opt {
	case OptionA, OptionB, OptionC, OptionD:
		return opt, nil
	}
	return "", ErrInvalidOption
}

func (o Option) index() int {
	return int(o[0] - 'A')
}

// Question models one multiple-choice question from the bank.
// ID is the positional index in the question source.
type Question struct {
	ID          int       `json:"id"`
	Topic       string    `json:"topic"`
	Prompt      string    `json:"prompt"`
	Choices     [4]string `json:"choices"`
	Answer      Option    `json:"answer"`
	Explanation string    `json:"explanation"`
}

// Choice pairs a letter with its text for rendering.
type Choice struct {
	Letter Option `json:"letter"`
	Text   string `json:"text"`
}

// ChoiceList returns the four options in A-D order.
func (q Question) ChoiceList() []Choice {
	out := make([]Choice, 0, len(Options))
	for _, opt := range Options {
		out = append(out, Choice{Letter: opt, Text: q.Choices[opt.index()]})
	}
	return out
}

// TopicCount is one row of the home page summary.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Mode selects between the free trial and the paid quiz.
type Mode string

const (
	ModeFreeTrial Mode = "free_trial"
	ModeFullQuiz  Mode = "full_quiz"
)

// ParseMode accepts the form values and their display labels.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "free_trial", "free trial", "trial":
		return ModeFreeTrial, nil
	case "full_quiz", "full quiz", "full":
		return ModeFullQuiz, nil
	}
	return "", ErrUnknownMode
}

func (m Mode) Label() string {
	if m == ModeFullQuiz {
		return "Full Quiz"
	}
	return "Free Trial"
}

// ReviewMode decides whether answers are revealed as you go.
type ReviewMode string

const (
	ReviewTutor ReviewMode = "tutor"
	ReviewTest  ReviewMode = "test"
)

func ParseReviewMode(raw string) (ReviewMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tutor":
		return ReviewTutor, nil
	case "test":
		return ReviewTest, nil
	}
	return "", ErrUnknownMode
}

func (m ReviewMode) Label() string {
	if m == ReviewTest {
		return "Test"
	}
	return "Tutor"
}

// QuizConfig is fixed when a quiz starts and only cleared by a reset.
type QuizConfig struct {
	Mode          Mode       `json:"mode"`
	ReviewMode    ReviewMode `json:"reviewMode"`
	Topic         string     `json:"topic"`
	QuestionOrder []int      `json:"questionOrder"`
}

// Response is an answer held in session memory.
type Response struct {
	QuestionID int    `json:"questionId"`
	Prompt     string `json:"prompt"`
	Selected   Option `json:"selected"`
	Correct    Option `json:"correct"`
	IsCorrect  bool   `json:"isCorrect"`
}

// Identity is the authenticated user attached to a session.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// User is the durable account record.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Paid         bool
	CreatedAt    time.Time
}

// StoredResponse is the durable, append-only answer log entry.
type StoredResponse struct {
	UserID     string    `json:"userId"`
	QuestionID int       `json:"questionId"`
	Question   string    `json:"question"`
	Selected   Option    `json:"selected"`
	IsCorrect  bool      `json:"isCorrect"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Score summarises a set of answers.
type Score struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// NewScore computes accuracy as a percentage; zero answers yield 0.
func NewScore(correct, total int) Score {
	s := Score{Total: total, Correct: correct}
	if total > 0 {
		s.Accuracy = float64(correct) / float64(total) * 100
	}
	return s
}

// CheckoutStatus is what the payment provider reports for a checkout reference.
type CheckoutStatus struct {
	Reference string
	Paid      bool
	UserID    string
	Email     string
}
