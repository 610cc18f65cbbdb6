package memory

import (
	"context"
	"sort"
	"sync"

	"crqbank/internal/domain"
)

// ResponseStore is an append-only in-memory answer log.
type ResponseStore struct {
	mu     sync.RWMutex
	byUser map[string][]domain.StoredResponse
}

func NewResponseStore() *ResponseStore {
	return &ResponseStore{byUser: make(map[string][]domain.StoredResponse)}
}

func (s *ResponseStore) Record(_ context.Context, resp domain.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[resp.UserID] = append(s.byUser[resp.UserID], resp)
	return nil
}

// History returns the user's answers by creation time, oldest first.
func (s *ResponseStore) History(_ context.Context, userID string) ([]domain.StoredResponse, error) {
	s.mu.RLock()
	out := append([]domain.StoredResponse(nil), s.byUser[userID]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
