package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrsadr/koravi/internal/domain"
)

// MemoryClientRepository keeps clients in process memory. It backs the
// "memory://" database URL and the package tests of its callers.
type MemoryClientRepository struct {
	mu      sync.Mutex
	clients map[string]*domain.Client
	order   []string
	nextSeq int64
	now     func() time.Time
	calls   map[string]int

	// Fail, when set, is consulted before each operation; a non-nil
	// error is returned instead of touching the data.
	Fail func(op string) error
}

// NewMemoryClientRepository creates an empty in-memory repository
func NewMemoryClientRepository(now func() time.Time) *MemoryClientRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryClientRepository{
		clients: map[string]*domain.Client{},
		now:     now,
		calls:   map[string]int{},
	}
}

// Calls returns how many times op was invoked
func (m *MemoryClientRepository) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemoryClientRepository) enter(op string) error {
	m.calls[op]++
	if m.Fail != nil {
		return m.Fail(op)
	}
	return nil
}

func (m *MemoryClientRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list"); err != nil {
		return nil, err
	}

	out := []*domain.Client{}
	for _, c := range m.sorted() {
		if q := strings.TrimSpace(filter.Search); q != "" && !matches(c, q) {
			continue
		}
		if filter.Status.Valid() && c.Status != filter.Status {
			continue
		}
		if len(filter.Labels) > 0 && !overlaps(c.Labels, filter.Labels) {
			continue
		}
		out = append(out, c)
	}

	limit := filter.Limit
	if filter.Offset > 0 && limit <= 0 {
		limit = DefaultPageSize
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*domain.Client{}, nil
		}
		out = out[filter.Offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryClientRepository) Get(ctx context.Context, id string) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get"); err != nil {
		return nil, err
	}
	c, ok := m.clients[id]
	if !ok {
		return nil, domain.NotFoundError("get client", id)
	}
	return clone(c), nil
}

func (m *MemoryClientRepository) Search(ctx context.Context, q string, limit int) ([]*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("search"); err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	out := []*domain.Client{}
	if q == "" {
		return out, nil
	}
	for _, c := range m.sorted() {
		if matches(c, q) {
			out = append(out, c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryClientRepository) Create(ctx context.Context, n domain.NewClient) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create"); err != nil {
		return nil, err
	}
	n.ApplyDefaults()
	m.nextSeq++
	seq := m.nextSeq
	now := m.now()

	c := &domain.Client{
		ID:            uuid.NewString(),
		ClientID:      &seq,
		FirstName:     n.FirstName,
		LastName:      n.LastName,
		Email:         n.Email,
		Phone:         n.Phone,
		DateOfBirth:   n.DateOfBirth,
		Gender:        n.Gender,
		Occupation:    n.Occupation,
		AvatarURL:     n.AvatarURL,
		AddressLine1:  n.AddressLine1,
		AddressLine2:  n.AddressLine2,
		City:          n.City,
		State:         n.State,
		PostalCode:    n.PostalCode,
		Country:       n.Country,
		Status:        n.Status,
		Labels:        slices.Clone(n.Labels),
		Notes:         n.Notes,
		Alerts:        n.Alerts,
		LastVisit:     n.LastVisit,
		TotalVisits:   *n.TotalVisits,
		LifetimeValue: *n.LifetimeValue,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.clients[c.ID] = c
	m.order = append(m.order, c.ID)
	return clone(c), nil
}

func (m *MemoryClientRepository) Update(ctx context.Context, id string, u domain.ClientUpdate, now time.Time) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("update"); err != nil {
		return nil, err
	}
	c, ok := m.clients[id]
	if !ok {
		return nil, domain.NotFoundError("update client", id)
	}
	u.Apply(c)
	if now.Before(c.CreatedAt) {
		now = c.CreatedAt
	}
	c.UpdatedAt = now
	return clone(c), nil
}

func (m *MemoryClientRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete"); err != nil {
		return err
	}
	if _, ok := m.clients[id]; !ok {
		return nil
	}
	delete(m.clients, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
	return nil
}

func (m *MemoryClientRepository) CountByStatus(ctx context.Context) (*domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("count"); err != nil {
		return nil, err
	}
	stats := &domain.Stats{}
	for _, c := range m.clients {
		stats.Add(c.Status, 1)
	}
	return stats, nil
}

func (m *MemoryClientRepository) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("statuses"); err != nil {
		return nil, err
	}
	out := make([]domain.Status, 0, len(m.clients))
	for _, id := range m.order {
		out = append(out, m.clients[id].Status)
	}
	return out, nil
}

func (m *MemoryClientRepository) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("ping")
}

// sorted returns copies ordered by updated_at descending; mu must be held
func (m *MemoryClientRepository) sorted() []*domain.Client {
	out := make([]*domain.Client, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, clone(m.clients[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func matches(c *domain.Client, q string) bool {
	q = strings.ToLower(q)
	fields := []string{c.FirstName, c.LastName, deref(c.Email), deref(c.Phone), deref(c.Occupation)}
	fields = append(fields, c.Labels...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(c.FullName()), q)
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clone(c *domain.Client) *domain.Client {
	cp := *c
	cp.Labels = slices.Clone(c.Labels)
	if cp.Labels == nil {
		cp.Labels = []string{}
	}
	return &cp
}
