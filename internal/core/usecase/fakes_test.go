package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
)

type memoryRepoFake struct {
	mu      sync.Mutex
	apps    map[string]*domain.Application
	writes  int
	lastAll domain.ApplicationFilter
}

func newMemoryRepoFake(apps ...*domain.Application) *memoryRepoFake {
	repo := &memoryRepoFake{apps: make(map[string]*domain.Application)}
	for _, app := range apps {
		repo.apps[app.ID] = app.Clone()
	}
	return repo
}

func (f *memoryRepoFake) Create(_ context.Context, app *domain.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.apps[app.ID]; ok {
		return domain.ErrConflict
	}
	f.apps[app.ID] = app.Clone()
	return nil
}

func (f *memoryRepoFake) GetByID(_ context.Context, id string) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok {
		return nil, domain.ErrApplicationNotFound
	}
	return app.Clone(), nil
}

func (f *memoryRepoFake) List(_ context.Context, filter domain.ApplicationFilter) ([]domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAll = filter
	out := make([]domain.Application, 0, len(f.apps))
	for _, app := range f.apps {
		if filter.UserID != "" && app.UserID != filter.UserID {
			continue
		}
		if filter.AgentID != "" && app.AgentID != filter.AgentID && !(filter.IncludeUnassigned && app.AgentID == "") {
			continue
		}
		if filter.Status != "" && !app.CurrentStatus.SameAs(filter.Status) {
			continue
		}
		out = append(out, *app.Clone())
	}
	return out, nil
}

// Mutate serializes read-modify-write cycles like the row lock in Postgres.
func (f *memoryRepoFake) Mutate(_ context.Context, id string, fn ports.MutateFunc) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.apps[id]
	if !ok {
		return nil, domain.ErrApplicationNotFound
	}
	working := current.Clone()
	changed, err := fn(working)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current.Clone(), nil
	}
	working.Version = current.Version + 1
	f.apps[id] = working
	f.writes++
	return working.Clone(), nil
}

func (f *memoryRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.apps[id]; !ok {
		return domain.ErrApplicationNotFound
	}
	delete(f.apps, id)
	return nil
}

func (f *memoryRepoFake) get(id string) *domain.Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apps[id].Clone()
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.StatusChanged
	err    error
}

func (f *publisherFake) PublishStatusChanged(_ context.Context, event domain.StatusChanged) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *publisherFake) published() []domain.StatusChanged {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.StatusChanged(nil), f.events...)
}

type storageFake struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
	// failFrom makes the nth save onwards (1-based) fail with err; zero fails every save.
	failFrom int
	saves    int
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.err != nil && f.saves >= f.failFrom {
		return 0, f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = raw
	return int64(len(raw)), nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *storageFake) URL(key string) string {
	return "http://files.local/" + key
}

type inspectorFake struct {
	pages int
	err   error
}

func (f inspectorFake) PageCount([]byte) (int, error) {
	return f.pages, f.err
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
}

// Now advances one minute per call so event dates are strictly ordered.
func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func submittedApplication(id string) *domain.Application {
	created := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	return &domain.Application{
		ID:            id,
		Name:          "Amina Yusuf",
		Email:         "amina@example.com",
		UserID:        "user-1",
		Destination:   "Canada",
		VisaType:      "Student",
		CurrentStatus: domain.StatusDocumentSubmitted,
		StatusHistory: []domain.StatusEvent{{
			Status: domain.StatusDocumentSubmitted,
			Date:   created,
			Note:   noteApplicationSubmitted,
		}},
		Version:   1,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

var (
	adminSession = domain.Session{UserID: "admin-1", Name: "Ada", Role: domain.RoleAdmin}
	agentSession = domain.Session{UserID: "agent-1", Name: "Kofi", Email: "kofi@agency.test", Role: domain.RoleAgent}
	otherAgent   = domain.Session{UserID: "agent-2", Name: "Lena", Role: domain.RoleAgent}
	ownerSession = domain.Session{UserID: "user-1", Name: "Amina", Role: domain.RoleUser}
	strangerUser = domain.Session{UserID: "user-9", Role: domain.RoleUser}
)
