package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore mantiene las cuentas en memoria; se siembra desde config.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Account
	byUser   map[string]string
	byMobile map[string]string
	byEmail  map[string]string
}

func NewMemoryStore(accounts ...Account) *MemoryStore {
	s := &MemoryStore{
		byID:     map[string]*Account{},
		byUser:   map[string]string{},
		byMobile: map[string]string{},
		byEmail:  map[string]string{},
	}
	for _, a := range accounts {
		s.Add(a)
	}
	return s
}

// Add inserta o reemplaza una cuenta. Sin ID se genera uno.
func (s *MemoryStore) Add(a Account) *Account {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Email = strings.ToLower(a.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[a.ID] = &a
	if a.Username != "" {
		s.byUser[strings.ToLower(a.Username)] = a.ID
	}
	if a.Mobile != "" {
		s.byMobile[a.Mobile] = a.ID
	}
	if a.Email != "" {
		s.byEmail[a.Email] = a.ID
	}
	return &a
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.byUser[strings.ToLower(username)])
}

func (s *MemoryStore) FindByMobile(_ context.Context, mobile string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.byMobile[mobile])
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.byEmail[strings.ToLower(email)])
}

// get requiere el lock tomado.
func (s *MemoryStore) get(id string) (*Account, error) {
	a, ok := s.byID[id]
	if !ok || id == "" {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}
