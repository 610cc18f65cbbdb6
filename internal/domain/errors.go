package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session id is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuestionNotFound indicates a question id outside the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidOption indicates an answer letter other than A-D.
	ErrInvalidOption = errors.New("option must be one of A, B, C or D")
	ErrUnknownMode   = errors.New("unknown quiz mode")
	ErrNoQuestions   = errors.New("no questions match the selected topic")

	ErrQuizNotStarted      = errors.New("quiz has not been started")
	ErrQuizInProgress      = errors.New("a quiz is already in progress, restart it first")
	ErrAlreadyAnswered     = errors.New("question has already been answered")
	ErrQuizIncomplete      = errors.New("answer every question before submitting")
	ErrQuizSubmitted       = errors.New("quiz has already been submitted")
	ErrEntitlementRequired = errors.New("full quiz requires a subscription")

	// ErrAuth is the parent of every sign-up/sign-in failure.
	ErrAuth               = errors.New("authentication failed")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrAuth)
	ErrEmailTaken         = fmt.Errorf("%w: email is already registered", ErrAuth)
	ErrInvalidEmail       = fmt.Errorf("%w: email address is not valid", ErrAuth)
	ErrWeakPassword       = fmt.Errorf("%w: password must be at least 6 characters", ErrAuth)
	ErrUserNotFound       = errors.New("user not found")

	// ErrPaymentVerification means payment could not be confirmed; treat as unpaid.
	ErrPaymentVerification = errors.New("payment could not be verified")
	// ErrPersistenceWrite means an answer was not durably saved.
	ErrPersistenceWrite = errors.New("response could not be saved")
)

// LoadError reports a missing or malformed question source.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load questions from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
