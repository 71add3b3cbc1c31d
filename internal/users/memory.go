package users

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		now:   time.Now,
	}
}

// Create implements Store
func (s *MemoryStore) Create(_ context.Context, externalID string, p Profile) (*User, error) {
	u, err := newUser(externalID, p, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[externalID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, externalID)
	}
	s.users[externalID] = u
	return u.clone(), nil
}

// Update implements Store
func (s *MemoryStore) Update(_ context.Context, externalID string, p Profile) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	u.applyProfile(p, s.now().UTC())
	return u.clone(), nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[externalID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	delete(s.users, externalID)
	return nil
}

// GetByExternalID implements Store
func (s *MemoryStore) GetByExternalID(_ context.Context, externalID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	return u.clone(), nil
}

// List implements Store
func (s *MemoryStore) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.clone())
	}
	s.mu.RUnlock()

	sortUsers(out)
	return out, nil
}

// SetRole implements Store
func (s *MemoryStore) SetRole(_ context.Context, externalID string, role Role) (*User, error) {
	role, err := ParseRole(string(role))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	u.Role = role
	u.UpdatedAt = s.now().UTC()
	return u.clone(), nil
}

// Close implements Store
func (*MemoryStore) Close() error {
	return nil
}

// sortUsers orders by creation time, then external id
func sortUsers(list []*User) {
	slices.SortFunc(list, func(a, b *User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ExternalID, b.ExternalID)
	})
}
