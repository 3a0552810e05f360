package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/model"
	"github.com/flycalcio/guestapp/internal/service"
)

// EventFlows is the part of service.EventService the /event routes use.
// Every method authorizes the caller before looking at its input.
type EventFlows interface {
	Create(ctx context.Context, id *auth.Identity, in service.CreateEventInput) (*model.Event, error)
	Update(ctx context.Context, id *auth.Identity, eventID string, upd model.EventUpdate) (*model.Event, error)
	Delete(ctx context.Context, id *auth.Identity, eventID string) error
	List(ctx context.Context, id *auth.Identity) ([]model.Event, error)
	Assign(ctx context.Context, id *auth.Identity, userID, eventID string) (*model.Assignment, error)
	Unassign(ctx context.Context, id *auth.Identity, userID, eventID string) error
}

// EventHandler serves /event and /event/assign. All routes sit behind
// auth.Authenticator.RequireAuth.
//
//   - GET    /event        → 200 {"events"}
//   - POST   /event        → 201 {"event"}
//   - PUT    /event        → 200 {"msg", "event"}
//   - DELETE /event        → 200 {"msg"}
//   - POST   /event/assign → 201 {"msg", "assignment"}
//   - DELETE /event/assign → 200 {"msg"}
type EventHandler struct {
	events EventFlows
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventFlows, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

type createEventRequest struct {
	Title    string `json:"title"`
	Date     string `json:"date"`
	Location string `json:"location"`
}

// updateEventRequest uses pointers so that a field left out of the body is
// left alone, while "" is an explicit value.
type updateEventRequest struct {
	EventID  string  `json:"eventId"`
	Title    *string `json:"title"`
	Date     *string `json:"date"`
	Location *string `json:"location"`
}

type eventIDRequest struct {
	EventID string `json:"eventId"`
}

type assignmentRequest struct {
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
}

// EventResponse wraps a single event.
type EventResponse struct {
	Msg   string       `json:"msg,omitempty"`
	Event *model.Event `json:"event"`
}

// EventsResponse wraps a list of events.
type EventsResponse struct {
	Events []model.Event `json:"events"`
}

// AssignmentResponse wraps a new assignment.
type AssignmentResponse struct {
	Msg        string            `json:"msg"`
	Assignment *model.Assignment `json:"assignment"`
}

// HandleList lists all events for an ADMIN and the caller's own otherwise.
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

// HandleCreate creates an event.
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	event, err := h.events.Create(r.Context(), auth.IdentityFromContext(r.Context()), service.CreateEventInput{
		Title:    req.Title,
		Date:     req.Date,
		Location: req.Location,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, EventResponse{Event: event})
}

// HandleUpdate applies a partial update to the event named by eventId.
func (h *EventHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateEventRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	event, err := h.events.Update(r.Context(), auth.IdentityFromContext(r.Context()), req.EventID, model.EventUpdate{
		Title:    req.Title,
		Date:     req.Date,
		Location: req.Location,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{Msg: "Event updated", Event: event})
}

// HandleDelete deletes the event named by eventId in the body, or by the
// eventId query parameter for clients that can't send a DELETE body.
func (h *EventHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req eventIDRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	if req.EventID == "" {
		req.EventID = r.URL.Query().Get("eventId")
	}

	if err := h.events.Delete(r.Context(), auth.IdentityFromContext(r.Context()), req.EventID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteMsg(w, http.StatusOK, "Event deleted")
}

// HandleAssign puts a user on an event.
func (h *EventHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	a, err := h.events.Assign(r.Context(), auth.IdentityFromContext(r.Context()), req.UserID, req.EventID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, AssignmentResponse{Msg: "User assigned to event", Assignment: a})
}

// HandleUnassign removes a user from an event.
func (h *EventHandler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	if err := h.events.Unassign(r.Context(), auth.IdentityFromContext(r.Context()), req.UserID, req.EventID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteMsg(w, http.StatusOK, "User removed from event")
}

// decodeOptionalJSON is decodeJSON for routes where an empty body is a
// valid (if incomplete) request. Leaving it to the service means a caller
// without the role gets 403 before anyone complains about missing fields.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		WriteMsg(w, http.StatusBadRequest, msgInvalidRequest)
		return false
	}
	return true
}
