package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"appraiserai/pkg/domain"
)

// MemoryStore keeps users and appraisals in-process. Used by tests and
// single-node development runs.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User // key: user ID
	email      map[string]string      // email -> user ID
	appraisals map[string]domain.Appraisal
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		email:      make(map[string]string),
		appraisals: make(map[string]domain.Appraisal),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	if u.Status == "" {
		u.Status = domain.StatusActive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemoryStore) SaveAppraisal(a domain.Appraisal) error {
	if strings.TrimSpace(a.AppraisalText) == "" {
		return ErrEmptyAppraisalText
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.appraisals[a.ID]; exists {
		return ErrAppraisalExists
	}
	m.appraisals[a.ID] = a
	return nil
}

func (m *MemoryStore) GetAppraisal(id string) (domain.Appraisal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appraisals[id]
	return a, ok, nil
}

func (m *MemoryStore) ListAppraisals(limit int) ([]domain.Appraisal, error) {
	return m.list(limit, func(domain.Appraisal) bool { return true }), nil
}

func (m *MemoryStore) ListAppraisalsByOwner(ownerID string, limit int) ([]domain.Appraisal, error) {
	return m.list(limit, func(a domain.Appraisal) bool { return a.OwnerID == ownerID }), nil
}

// list returns matches newest first, like the SQL store.
func (m *MemoryStore) list(limit int, keep func(domain.Appraisal) bool) []domain.Appraisal {
	m.mu.RLock()
	res := make([]domain.Appraisal, 0, len(m.appraisals))
	for _, a := range m.appraisals {
		if keep(a) {
			res = append(res, a)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if limit = normalizeLimit(limit); len(res) > limit {
		res = res[:limit]
	}
	return res
}

func (m *MemoryStore) SetAppraisalImage(id, imageKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appraisals[id]
	if !ok {
		return nil
	}
	a.ImageKey = imageKey
	m.appraisals[id] = a
	return nil
}

func (m *MemoryStore) DeleteAppraisal(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.appraisals, id)
	return nil
}

func (m *MemoryStore) AppraisalStats(ownerID string, now time.Time) (domain.AppraisalStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := domain.AppraisalStats{ByTemplate: map[string]int{}}
	today, month := dayStart(now), monthStart(now)
	for _, a := range m.appraisals {
		if ownerID != "" && a.OwnerID != ownerID {
			continue
		}
		stats.Total++
		if !a.CreatedAt.Before(today) {
			stats.Today++
		}
		if !a.CreatedAt.Before(month) {
			stats.Month++
		}
		stats.ByTemplate[a.TemplateID]++
	}
	return stats, nil
}
