package registrations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evenia/backend/internal/events"
	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/queue"
)

// memStore is an in-memory Store. mu is held for the whole of a mutation,
// which stands in for the row lock of the SQL store.
type memStore struct {
	mu       sync.Mutex
	regs     map[uuid.UUID]*models.Registration
	events   map[uuid.UUID]*models.Event
	users    map[uuid.UUID]*models.UserSummary
	reminded map[uuid.UUID]bool
	// failWrites makes every write return this error.
	failWrites error
	// mutateDelay widens the window between reading and writing in a mutation.
	mutateDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		regs:     map[uuid.UUID]*models.Registration{},
		events:   map[uuid.UUID]*models.Event{},
		users:    map[uuid.UUID]*models.UserSummary{},
		reminded: map[uuid.UUID]bool{},
	}
}

func (m *memStore) addEvent(ev *models.Event) *models.Event {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	m.events[ev.ID] = ev
	return ev
}

func (m *memStore) addUser() uuid.UUID {
	id := uuid.New()
	m.users[id] = &models.UserSummary{ID: id, Email: id.String()[:8] + "@example.fr", FullName: "Camille Martin"}
	return id
}

func (m *memStore) addRegistration(reg *models.Registration) *models.Registration {
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	if reg.UserID == uuid.Nil {
		reg.UserID = m.addUser()
	}
	cp := *reg
	cp.User, cp.Event = nil, nil
	m.regs[reg.ID] = &cp
	return m.load(reg.ID)
}

// load returns a detached copy with user and event attached. Callers hold mu.
func (m *memStore) load(id uuid.UUID) *models.Registration {
	stored, ok := m.regs[id]
	if !ok {
		return nil
	}
	cp := *stored
	if u, ok := m.users[cp.UserID]; ok {
		uc := *u
		cp.User = &uc
	}
	if ev, ok := m.events[cp.EventID]; ok {
		ec := *ev
		cp.Event = &ec
	}
	return &cp
}

func (m *memStore) Create(_ context.Context, reg *models.Registration, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return persistence("insert registration", m.failWrites)
	}
	if _, ok := m.events[reg.EventID]; !ok {
		return ErrEventNotFound
	}
	taken := 0
	for _, r := range m.regs {
		if r.EventID != reg.EventID {
			continue
		}
		if r.Status != models.StatusCanceled {
			taken++
		}
		if r.UserID == reg.UserID && r.IsActive() {
			return ErrAlreadyRegistered
		}
	}
	if capacity > 0 && taken >= capacity {
		return ErrEventFull
	}
	now := time.Now()
	reg.CreatedAt, reg.UpdatedAt = now, now
	cp := *reg
	cp.User, cp.Event = nil, nil
	m.regs[reg.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg := m.load(id); reg != nil {
		return reg, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) idByCode(code string) (uuid.UUID, bool) {
	for id, r := range m.regs {
		if r.QRCode != "" && r.QRCode == code {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (m *memStore) GetByCode(_ context.Context, code string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.idByCode(code); ok {
		return m.load(id), nil
	}
	return nil, ErrNotFound
}

func (m *memStore) list(keep func(*models.Registration) bool) []models.Registration {
	var out []models.Registration
	for id, r := range m.regs {
		if keep(r) {
			out = append(out, *m.load(id))
		}
	}
	return out
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(r *models.Registration) bool { return r.UserID == userID }), nil
}

func (m *memStore) ListByEvent(_ context.Context, eventID uuid.UUID, status models.RegistrationStatus) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(r *models.Registration) bool {
		return r.EventID == eventID && (status == "" || r.Status == status)
	}), nil
}

func (m *memStore) Stats(_ context.Context, eventID uuid.UUID) (*models.RegistrationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s models.RegistrationStats
	for _, r := range m.regs {
		if r.EventID != eventID {
			continue
		}
		s.Total++
		switch r.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusConfirmed:
			s.Confirmed++
			s.Revenue = s.Revenue.Add(r.Price)
		case models.StatusAttended:
			s.Attended++
			s.Revenue = s.Revenue.Add(r.Price)
		case models.StatusCanceled:
			s.Canceled++
		}
	}
	return &s, nil
}

func (m *memStore) AssignCode(_ context.Context, id uuid.UUID, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return "", persistence("assign code", m.failWrites)
	}
	r, ok := m.regs[id]
	if !ok {
		return "", ErrNotFound
	}
	if r.QRCode != "" {
		return r.QRCode, nil
	}
	if _, taken := m.idByCode(code); taken {
		return "", ErrCodeTaken
	}
	r.QRCode = code
	return code, nil
}

func (m *memStore) mutate(id uuid.UUID, ok bool, fn MutateFunc) (*models.Registration, error) {
	if !ok {
		return nil, ErrNotFound
	}
	reg := m.load(id)
	if m.mutateDelay > 0 {
		time.Sleep(m.mutateDelay)
	}
	if err := fn(reg); err != nil {
		return nil, err
	}
	if m.failWrites != nil {
		return nil, persistence("update registration", m.failWrites)
	}
	stored := m.regs[id]
	stored.Status = reg.Status
	stored.AttendedAt = reg.AttendedAt
	stored.UpdatedAt = time.Now()
	reg.UpdatedAt = stored.UpdatedAt
	return reg, nil
}

func (m *memStore) MutateByID(_ context.Context, id uuid.UUID, fn MutateFunc) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.regs[id]
	return m.mutate(id, ok, fn)
}

func (m *memStore) MutateByCode(_ context.Context, code string, fn MutateFunc) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idByCode(code)
	return m.mutate(id, ok, fn)
}

func (m *memStore) DueReminders(_ context.Context, from, to time.Time) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(r *models.Registration) bool {
		ev := m.events[r.EventID]
		return r.IsActive() && ev.Published && !m.reminded[r.ID] &&
			!ev.StartsAt.Before(from) && ev.StartsAt.Before(to)
	}), nil
}

// memEvents adapts memStore to EventLookup.
type memEvents struct{ m *memStore }

func (e memEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	ev, ok := e.m.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.EmailPayload
}

func (q *recordingQueue) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, p)
	return nil
}

func (q *recordingQueue) types() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.jobs))
	for i, j := range q.jobs {
		out[i] = j.EmailType
	}
	return out
}
