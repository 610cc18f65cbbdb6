package app

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"crqbank/internal/domain"
	"github.com/google/uuid"
)

// SessionRepository abstracts how sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
}

const lockStripes = 64

// SessionManager serialises actions on the same session so that a
// load-mutate-save cycle is never interleaved with another one.
type SessionManager struct {
	repo  SessionRepository
	now   func() time.Time
	locks [lockStripes]sync.Mutex
}

func NewSessionManager(repo SessionRepository) *SessionManager {
	return &SessionManager{repo: repo, now: time.Now}
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Load returns the session for id, creating a blank one on first contact.
func (m *SessionManager) Load(ctx context.Context, id string) (*domain.Session, error) {
	session, err := m.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.NewSession(id, m.now()), nil
	}
	return session, err
}

// Update runs fn against the session under its lock and saves the result.
// The session is saved even when fn fails so notices survive the redirect.
func (m *SessionManager) Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	fnErr := fn(session)
	session.UpdatedAt = m.now()
	if err := m.repo.Save(ctx, session); err != nil {
		return session, err
	}
	return session, fnErr
}

// Destroy drops the stored session entirely.
func (m *SessionManager) Destroy(ctx context.Context, id string) error {
	mu := m.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	return m.repo.Delete(ctx, id)
}

func (m *SessionManager) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &m.locks[h.Sum32()%lockStripes]
}
