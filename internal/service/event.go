package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/model"
	"github.com/flycalcio/guestapp/internal/repository"
)

// CreateEventInput is the payload of an event creation.
type CreateEventInput struct {
	Title    string
	Date     string
	Location string
}

// EventService manages events and who is assigned to them.
//
// Every method asks the gate before it looks at its input, so an
// unauthenticated caller always gets 401 and a USER calling an admin
// operation always gets 403, whatever the payload.
type EventService struct {
	events      repository.EventRepository
	assignments repository.AssignmentRepository
	users       repository.UserRepository
	gate        *auth.Gate
	logger      *slog.Logger
}

func NewEventService(
	events repository.EventRepository,
	assignments repository.AssignmentRepository,
	users repository.UserRepository,
	gate *auth.Gate,
	logger *slog.Logger,
) *EventService {
	return &EventService{
		events:      events,
		assignments: assignments,
		users:       users,
		gate:        gate,
		logger:      logger,
	}
}

func validDate(s string) bool {
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// Create stores a new event created by the caller.
func (s *EventService) Create(ctx context.Context, id *auth.Identity, in CreateEventInput) (*model.Event, error) {
	if err := s.gate.Authorize(id, auth.ActionEventCreate); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	date := strings.TrimSpace(in.Date)
	if title == "" || date == "" {
		return nil, apperror.ValidationFailed("title", "title and date are required")
	}
	if !validDate(date) {
		return nil, apperror.ValidationFailed("date", "date must be YYYY-MM-DD")
	}

	event := &model.Event{
		Title:     title,
		Date:      date,
		Location:  strings.TrimSpace(in.Location),
		CreatedBy: id.SubjectID,
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("service/event: creating event: %w", err)
	}

	s.logger.Info("event created", slog.String("eventID", event.ID), slog.String("by", id.SubjectID))
	return event, nil
}

// Update applies the non-nil fields of upd to the event.
func (s *EventService) Update(ctx context.Context, id *auth.Identity, eventID string, upd model.EventUpdate) (*model.Event, error) {
	if err := s.gate.Authorize(id, auth.ActionEventUpdate); err != nil {
		return nil, err
	}

	if eventID == "" {
		return nil, apperror.ValidationFailed("eventId", "eventId required")
	}
	if upd.Empty() {
		return nil, apperror.ValidationFailed("", "No fields to update")
	}
	upd.Title = trimmed(upd.Title)
	upd.Date = trimmed(upd.Date)
	upd.Location = trimmed(upd.Location)
	if upd.Title != nil && *upd.Title == "" {
		return nil, apperror.ValidationFailed("title", "title must not be empty")
	}
	if upd.Date != nil && !validDate(*upd.Date) {
		return nil, apperror.ValidationFailed("date", "date must be YYYY-MM-DD")
	}

	event, err := s.events.UpdateEvent(ctx, eventID, upd)
	if err != nil {
		return nil, fmt.Errorf("service/event: updating %s: %w", eventID, err)
	}

	s.logger.Info("event updated", slog.String("eventID", eventID), slog.String("by", id.SubjectID))
	return event, nil
}

// Delete removes the event and its assignments.
func (s *EventService) Delete(ctx context.Context, id *auth.Identity, eventID string) error {
	if err := s.gate.Authorize(id, auth.ActionEventDelete); err != nil {
		return err
	}
	if eventID == "" {
		return apperror.ValidationFailed("eventId", "eventId required")
	}

	if err := s.events.DeleteEvent(ctx, eventID); err != nil {
		return fmt.Errorf("service/event: deleting %s: %w", eventID, err)
	}

	s.logger.Info("event deleted", slog.String("eventID", eventID), slog.String("by", id.SubjectID))
	return nil
}

// List returns every event (date ascending) to an ADMIN, and only the
// caller's assigned events (date descending) to anyone else.
func (s *EventService) List(ctx context.Context, id *auth.Identity) ([]model.Event, error) {
	if s.gate.Allows(id, auth.ActionEventListAll) {
		events, err := s.events.ListEvents(ctx)
		if err != nil {
			return nil, fmt.Errorf("service/event: listing events: %w", err)
		}
		return events, nil
	}

	if err := s.gate.Authorize(id, auth.ActionEventListOwn); err != nil {
		return nil, err
	}
	events, err := s.assignments.ListAssignedEvents(ctx, id.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("service/event: listing events of %s: %w", id.SubjectID, err)
	}
	return events, nil
}

// ListOwn returns the caller's assigned events, latest first, whatever the
// caller's role. The caller's user record must exist.
func (s *EventService) ListOwn(ctx context.Context, id *auth.Identity) ([]model.Event, error) {
	if err := s.gate.Authorize(id, auth.ActionEventListOwn); err != nil {
		return nil, err
	}

	if _, err := s.users.FindUserByID(ctx, id.SubjectID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("service/event: fetching user %s: %w", id.SubjectID, err)
	}

	events, err := s.assignments.ListAssignedEvents(ctx, id.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("service/event: listing events of %s: %w", id.SubjectID, err)
	}
	return events, nil
}

// Assign puts userID on eventID. Both must exist.
func (s *EventService) Assign(ctx context.Context, id *auth.Identity, userID, eventID string) (*model.Assignment, error) {
	if err := s.gate.Authorize(id, auth.ActionAssignmentCreate); err != nil {
		return nil, err
	}
	if userID == "" || eventID == "" {
		return nil, apperror.ValidationFailed("userId", "userId and eventId required")
	}

	if _, err := s.users.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("service/event: fetching user %s: %w", userID, err)
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("Event")
		}
		return nil, fmt.Errorf("service/event: fetching event %s: %w", eventID, err)
	}

	a := &model.Assignment{
		UserID:     userID,
		EventID:    eventID,
		Status:     model.AssignmentConfirmed,
		AssignedBy: id.SubjectID,
	}
	if err := s.assignments.CreateAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("service/event: assigning %s to %s: %w", userID, eventID, err)
	}

	s.logger.Info("user assigned to event",
		slog.String("userID", userID),
		slog.String("eventID", eventID),
		slog.String("by", id.SubjectID),
	)
	return a, nil
}

// Unassign removes userID from eventID.
func (s *EventService) Unassign(ctx context.Context, id *auth.Identity, userID, eventID string) error {
	if err := s.gate.Authorize(id, auth.ActionAssignmentDelete); err != nil {
		return err
	}
	if userID == "" || eventID == "" {
		return apperror.ValidationFailed("userId", "userId and eventId required")
	}

	if err := s.assignments.DeleteAssignment(ctx, userID, eventID); err != nil {
		return fmt.Errorf("service/event: removing %s from %s: %w", userID, eventID, err)
	}

	s.logger.Info("user removed from event",
		slog.String("userID", userID),
		slog.String("eventID", eventID),
		slog.String("by", id.SubjectID),
	)
	return nil
}
