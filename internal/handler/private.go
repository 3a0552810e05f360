package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/model"
)

// ProfileReader returns the caller's own record.
type ProfileReader interface {
	Profile(ctx context.Context, id *auth.Identity) (model.PublicUser, error)
}

// OwnEventsLister returns the caller's own events.
type OwnEventsLister interface {
	ListOwn(ctx context.Context, id *auth.Identity) ([]model.Event, error)
}

// PrivateHandler serves the caller-scoped /private routes.
type PrivateHandler struct {
	profiles ProfileReader
	events   OwnEventsLister
	logger   *slog.Logger
}

// NewPrivateHandler creates a PrivateHandler.
func NewPrivateHandler(profiles ProfileReader, events OwnEventsLister, logger *slog.Logger) *PrivateHandler {
	return &PrivateHandler{profiles: profiles, events: events, logger: logger}
}

// UserResponse wraps a public user projection.
type UserResponse struct {
	User model.PublicUser `json:"user"`
}

// HandleMe returns the caller's profile.
//
// HTTP: GET /private/me → 200 {"user"}, 404 when the record is gone.
func (h *PrivateHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.profiles.Profile(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// HandleEvents returns the events the caller is assigned to, latest first.
//
// HTTP: GET /private/events → 200 {"events"}
func (h *PrivateHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListOwn(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}
