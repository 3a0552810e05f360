package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/handler"
	"github.com/flycalcio/guestapp/internal/model"
)

type stubPrivate struct {
	user   model.PublicUser
	events []model.Event
	err    error
}

func (s *stubPrivate) Profile(ctx context.Context, id *auth.Identity) (model.PublicUser, error) {
	return s.user, s.err
}

func (s *stubPrivate) ListOwn(ctx context.Context, id *auth.Identity) ([]model.Event, error) {
	return s.events, s.err
}

func TestPrivateHandler_Me(t *testing.T) {
	stub := &stubPrivate{user: model.PublicUser{ID: "user-1", Email: "a@x.com", Role: model.RoleUser}}
	h := handler.NewPrivateHandler(stub, stub, newTestLogger())
	rr := httptest.NewRecorder()

	h.HandleMe(rr, withIdentity(jsonRequest(http.MethodGet, "/private/me", ""), guest))

	require.Equal(t, http.StatusOK, rr.Code)
	var res handler.UserResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "user-1", res.User.ID)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestPrivateHandler_MeMissingUser(t *testing.T) {
	stub := &stubPrivate{err: apperror.NotFound("User")}
	h := handler.NewPrivateHandler(stub, stub, newTestLogger())
	rr := httptest.NewRecorder()

	h.HandleMe(rr, withIdentity(jsonRequest(http.MethodGet, "/private/me", ""), guest))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "User not found", decodeMsg(t, rr))
}

func TestPrivateHandler_Events(t *testing.T) {
	stub := &stubPrivate{events: []model.Event{
		{ID: "e2", Date: "2025-06-01"},
		{ID: "e1", Date: "2025-01-01"},
	}}
	h := handler.NewPrivateHandler(stub, stub, newTestLogger())
	rr := httptest.NewRecorder()

	h.HandleEvents(rr, withIdentity(jsonRequest(http.MethodGet, "/private/events", ""), guest))

	require.Equal(t, http.StatusOK, rr.Code)
	var res handler.EventsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.Len(t, res.Events, 2)
	assert.Equal(t, "e2", res.Events[0].ID)
}
