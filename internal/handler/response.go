package handler

// Every response body is JSON. Errors share one shape:
//
//	{"msg": "Event not found"}
//
// Success bodies carry "msg" when there is something to say, plus the
// flow-specific payload: access_token, refresh_token, user, event, events
// or assignment.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/flycalcio/guestapp/internal/apperror"
)

const (
	msgInvalidRequest = "Invalid request"
	msgInternal       = "Internal server error"
)

// maxBodyBytes caps request bodies. Every request this API accepts is a
// handful of short strings.
const maxBodyBytes = 1 << 20

// MsgResponse is the envelope for responses that carry only a message.
type MsgResponse struct {
	Msg string `json:"msg"`
}

// writeJSON sends data as JSON with the given status. Headers must be set
// before WriteHeader; anything set later is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are gone already; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// WriteMsg sends the {"msg": ...} envelope. The server uses it for its
// NotFound and MethodNotAllowed handlers.
func WriteMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MsgResponse{Msg: msg})
}

// writeError maps a service error to a status code and sends its message.
//
// Only *apperror.AppError messages reach the client. Anything else is
// unexpected: it is logged with the request path and answered with a
// generic 500 so that internals (SQL, ARNs, file paths) never leak.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		}
		if status == http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		WriteMsg(w, status, appErr.Message)
		return
	}

	logger.Error("unhandled error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteMsg(w, http.StatusInternalServerError, msgInternal)
}

// decodeJSON reads the request body into dst. An empty, oversized or
// malformed body is answered with 400 "Invalid request" and false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !errors.Is(err, io.EOF) {
			slog.Debug("invalid request body", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		}
		WriteMsg(w, http.StatusBadRequest, msgInvalidRequest)
		return false
	}
	return true
}
