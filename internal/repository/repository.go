// Package repository declares the storage contracts the services depend on.
//
// Two implementations exist: sqlite (local server, tests) and dynamo (the
// deployed single-table layout). Both report absence with apperror.NotFound
// and uniqueness violations with apperror.Conflict, enforced by the store's
// own conditional write rather than a read-then-write.
package repository

import (
	"context"

	"github.com/flycalcio/guestapp/internal/model"
)

// UserRepository stores user records. Users are created, never updated or
// deleted.
type UserRepository interface {
	// FindUserByEmail matches the email exactly as stored.
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	// CreateUser assigns ID and CreatedAt when they are empty. A second
	// user with the same email fails with apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
}

// EventRepository stores events.
type EventRepository interface {
	// CreateEvent assigns ID and CreatedAt when they are empty.
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// UpdateEvent applies the non-nil fields of upd and returns the result.
	UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error)
	// DeleteEvent removes the event and every assignment to it.
	DeleteEvent(ctx context.Context, id string) error
	// ListEvents returns every event, ordered by date.
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// AssignmentRepository stores user↔event assignments.
type AssignmentRepository interface {
	// CreateAssignment fails with apperror.ErrConflict if the user is
	// already assigned to the event.
	CreateAssignment(ctx context.Context, a *model.Assignment) error
	DeleteAssignment(ctx context.Context, userID, eventID string) error
	// ListAssignedEvents returns the events userID is assigned to. Events
	// deleted since the assignment was made are skipped.
	ListAssignedEvents(ctx context.Context, userID string) ([]model.Event, error)
}

// Store is everything the application persists, as one value.
type Store interface {
	UserRepository
	EventRepository
	AssignmentRepository
	Close() error
}
