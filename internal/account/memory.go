package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same version-check
// contract as Repository. It backs tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	byEmail  map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*Account),
		byEmail:  make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Create(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[a.Email]; exists {
		return ErrDuplicateEmail
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Version == 0 {
		a.Version = 1
	}

	s.accounts[a.ID] = a.Clone()
	s.byEmail[a.Email] = a.ID
	return nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) FindByResetCode(ctx context.Context, code string, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.PasswordResetCode == nil || a.PasswordResetExpiresAt == nil {
			continue
		}
		if *a.PasswordResetCode == code && a.PasswordResetExpiresAt.After(now) {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Save(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != a.Version {
		return ErrVersionConflict
	}

	a.Version++
	a.UpdatedAt = time.Now()
	s.accounts[a.ID] = a.Clone()
	return nil
}
