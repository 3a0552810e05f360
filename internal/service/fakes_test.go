package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================

// fakeStore is an in-memory repository.Store. Like the real stores it
// enforces email and assignment uniqueness at write time.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]*model.User
	events      map[string]*model.Event
	assignments map[string]*model.Assignment
	nextID      int

	// set to simulate a store failure
	findErr error
	// hideEmails makes FindUserByEmail miss, as a concurrent registration
	// that has not been written yet would.
	hideEmails bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]*model.User),
		events:      make(map[string]*model.Event),
		assignments: make(map[string]*model.Assignment),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) FindUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.hideEmails {
		return nil, apperror.NotFound("User")
	}
	for _, u := range f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("User")
}

func (f *fakeStore) FindUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("User")
	}
	c := *u
	return &c, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("User already exists")
		}
	}
	if user.ID == "" {
		user.ID = f.id("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	c := *user
	f.users[user.ID] = &c
	return nil
}

func (f *fakeStore) CreateEvent(_ context.Context, event *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == "" {
		event.ID = f.id("event")
	}
	if _, ok := f.events[event.ID]; ok {
		return apperror.Conflict("Event already exists")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	c := *event
	f.events[event.ID] = &c
	return nil
}

func (f *fakeStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, apperror.NotFound("Event")
	}
	c := *e
	return &c, nil
}

func (f *fakeStore) UpdateEvent(_ context.Context, id string, upd model.EventUpdate) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, apperror.NotFound("Event")
	}
	upd.Apply(e)
	c := *e
	return &c, nil
}

func (f *fakeStore) DeleteEvent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return apperror.NotFound("Event")
	}
	delete(f.events, id)
	for k, a := range f.assignments {
		if a.EventID == id {
			delete(f.assignments, k)
		}
	}
	return nil
}

func (f *fakeStore) ListEvents(_ context.Context) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Event, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (f *fakeStore) CreateAssignment(_ context.Context, a *model.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := a.UserID + "|" + a.EventID
	if _, ok := f.assignments[key]; ok {
		return apperror.Conflict("User already assigned to event")
	}
	if a.Status == "" {
		a.Status = model.AssignmentConfirmed
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	c := *a
	f.assignments[key] = &c
	return nil
}

func (f *fakeStore) DeleteAssignment(_ context.Context, userID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID + "|" + eventID
	if _, ok := f.assignments[key]; !ok {
		return apperror.NotFound("Assignment")
	}
	delete(f.assignments, key)
	return nil
}

func (f *fakeStore) ListAssignedEvents(_ context.Context, userID string) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Event, 0)
	for _, a := range f.assignments {
		if a.UserID != userID {
			continue
		}
		if e, ok := f.events[a.EventID]; ok {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeVerifier returns a fixed identity, or err.
type fakeVerifier struct {
	ident *auth.ExternalIdentity
	err   error
}

func (v *fakeVerifier) VerifyIdentity(_ context.Context, _ string) (*auth.ExternalIdentity, error) {
	if v.err != nil {
		return nil, v.err
	}
	c := *v.ident
	return &c, nil
}

// recordingNotifier remembers every recipient.
type recordingNotifier struct {
	mu  sync.Mutex
	to  []string
	err error
}

func (n *recordingNotifier) Notify(_ context.Context, to, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.to = append(n.to, to)
	return n.err
}

// failingSecrets is a secret store that is down.
type failingSecrets struct{}

func (failingSecrets) GetSecret(context.Context, string) ([]byte, error) {
	return nil, errors.New("secrets manager unreachable")
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func adminIdentity() *auth.Identity {
	return &auth.Identity{SubjectID: "admin-1", Email: "admin@x.com", Role: model.RoleAdmin}
}

func userIdentity(id string) *auth.Identity {
	return &auth.Identity{SubjectID: id, Email: id + "@x.com", Role: model.RoleUser}
}
