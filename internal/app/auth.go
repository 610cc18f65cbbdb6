package app

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"crqbank/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// AuthService is the local identity provider backed by UserRepository.
type AuthService struct {
	users   UserRepository
	cost    int
	timeout time.Duration
	now     func() time.Time
}

// NewAuthService bounds every repository call by timeout.
func NewAuthService(users UserRepository, timeout time.Duration) *AuthService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuthService{users: users, cost: bcrypt.DefaultCost, timeout: timeout, now: time.Now}
}

// NewAuthServiceWithCost is for tests that cannot afford the default bcrypt cost.
func NewAuthServiceWithCost(users UserRepository, cost int, timeout time.Duration) *AuthService {
	s := NewAuthService(users, timeout)
	s.cost = cost
	return s
}

// SignUp creates an account and signs the session in.
func (s *AuthService) SignUp(ctx context.Context, session *domain.Session, email, password string) error {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return domain.ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return domain.ErrWeakPassword
	}
	if _, err := s.lookup(ctx, email); err == nil {
		return domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	createCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	user, err := s.users.Create(createCtx, domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return err
	}
	attach(session, user)
	return nil
}

// SignIn checks credentials and restores identity and entitlement.
func (s *AuthService) SignIn(ctx context.Context, session *domain.Session, email, password string) error {
	user, err := s.lookup(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.ErrInvalidCredentials
	}
	attach(session, user)
	return nil
}

func (s *AuthService) lookup(ctx context.Context, email string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.GetByEmail(ctx, email)
}

// SignOut clears every session field.
func (s *AuthService) SignOut(session *domain.Session) {
	session.Clear()
}

func attach(session *domain.Session, user domain.User) {
	if session.Identity != nil && session.Identity.UserID != user.ID {
		session.Clear()
	}
	session.Identity = &domain.Identity{UserID: user.ID, Email: user.Email}
	session.Entitled = user.Paid
	session.CheckoutURL = ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
