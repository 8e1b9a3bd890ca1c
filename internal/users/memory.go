package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benzdriver/thinkforward-ai-sub003/internal/models"
)

// MemoryRepository is a simple in-memory Repository used by unit tests and
// local development without MongoDB. Users are stored as copies so callers
// cannot mutate the store through retained pointers; lookup scans in insertion
// order, which keeps "first match wins" deterministic.
type MemoryRepository struct {
	mu    sync.RWMutex
	order []string
	store map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.User)}
}

func (m *MemoryRepository) FindByClerkIDOrEmail(ctx context.Context, clerkID, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		u := m.store[id]
		if (clerkID != "" && u.ClerkID == clerkID) || (email != "" && u.Email == email) {
			return u.Clone(), nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) Save(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.UpdatedAt = time.Now().UTC()
	if u.ID == "" {
		u.ID = fmt.Sprintf("mem_%d", len(m.order)+1)
	}
	if _, ok := m.store[u.ID]; !ok {
		m.order = append(m.order, u.ID)
	}
	m.store[u.ID] = u.Clone()
	return nil
}

// All returns every stored user in insertion order.
func (m *MemoryRepository) All() []*models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.User, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.store[id].Clone())
	}
	return out
}
