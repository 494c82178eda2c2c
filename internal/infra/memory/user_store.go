package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/platform/user"
)

// UserStore is an in-process user.Repository for tests and local
// development.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*user.User
	byEmail map[string]uuid.UUID
}

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[uuid.UUID]*user.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *UserStore) Create(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[u.Email]; exists {
		return user.ErrUserAlreadyExists
	}
	c := *u
	s.byID[u.ID] = &c
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	c := *s.byID[id]
	return &c, nil
}

func (s *UserStore) Update(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[u.ID]; !ok {
		return user.ErrUserNotFound
	}
	c := *u
	s.byID[u.ID] = &c
	return nil
}

func (s *UserStore) Exists(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}
