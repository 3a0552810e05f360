package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/model"
	"github.com/flycalcio/guestapp/internal/service"
)

// SessionFlows is the part of service.AuthService the auth routes use.
type SessionFlows interface {
	Register(ctx context.Context, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	ExternalLogin(ctx context.Context, identityToken string) (*service.Session, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
}

// CookieConfig controls whether tokens are also delivered as cookies.
//
// Cookies are HttpOnly, Secure and SameSite=None: the frontend lives on a
// different origin and must send them with credentials: "include". The
// refresh cookie is scoped to RefreshPath so it only travels to the
// refresh endpoint.
type CookieConfig struct {
	Emit        bool
	RefreshPath string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
}

// AuthHandler serves the unauthenticated /auth routes.
//
//   - POST /auth/register → 201 {"msg"}
//   - POST /auth/login    → 200 {"msg", "access_token", "refresh_token", "user"}
//   - POST /auth/google   → same as login
//   - POST /auth/refresh  → 200 {"msg", "access_token", "refresh_token"}
//   - POST /auth/logout   → 200 {"msg"}, clears the cookies
type AuthHandler struct {
	flows   SessionFlows
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(flows SessionFlows, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{flows: flows, cookies: cookies, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// googleLoginRequest accepts the field name the web client sends
// (google_token) and the generic one (identityToken).
type googleLoginRequest struct {
	GoogleToken   string `json:"google_token"`
	IdentityToken string `json:"identityToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse is the body of a successful login or refresh.
type SessionResponse struct {
	Msg          string            `json:"msg"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	User         *model.PublicUser `json:"user,omitempty"`
}

// HandleRegister creates a password account.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.flows.Register(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	WriteMsg(w, http.StatusCreated, "User registered successfully")
}

// HandleLogin exchanges email and password for a token pair.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.flows.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.writeSession(w, sess)
}

// HandleGoogleLogin exchanges a Google ID token for a token pair.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token := req.GoogleToken
	if token == "" {
		token = req.IdentityToken
	}

	sess, err := h.flows.ExternalLogin(r.Context(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.writeSession(w, sess)
}

// HandleRefresh trades a refresh token for a new pair. The refresh_token
// cookie is tried first; a token in the body is used when there is no
// cookie or when the cookie's token is rejected, so a stale cookie cannot
// shadow a good token. An empty body is allowed so that cookie-less clients
// get the service's 401 rather than a 400.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var cookieToken string
	if c, err := r.Cookie(auth.RefreshCookieName); err == nil {
		cookieToken = c.Value
	}

	var req refreshRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if cookieToken == "" {
			WriteMsg(w, http.StatusBadRequest, msgInvalidRequest)
			return
		}
		req = refreshRequest{}
	}

	token := cookieToken
	if token == "" {
		token = req.RefreshToken
	}
	pair, err := h.flows.Refresh(r.Context(), token)
	if err != nil && errors.Is(err, apperror.ErrUnauthorized) &&
		cookieToken != "" && req.RefreshToken != "" && req.RefreshToken != cookieToken {
		h.logger.Debug("refresh cookie rejected, trying body token")
		pair, err = h.flows.Refresh(r.Context(), req.RefreshToken)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.setCookies(w, pair)
	writeJSON(w, http.StatusOK, SessionResponse{
		Msg:          "Token refreshed",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// HandleLogout clears the token cookies. Tokens are stateless, so anything
// the client kept elsewhere stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if h.cookies.Emit {
		http.SetCookie(w, h.cookie(auth.AccessCookieName, "", "/", -1))
		http.SetCookie(w, h.cookie(auth.RefreshCookieName, "", h.cookies.RefreshPath, -1))
	}
	WriteMsg(w, http.StatusOK, "Logged out")
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, sess *service.Session) {
	h.setCookies(w, sess.TokenPair)
	user := sess.User
	writeJSON(w, http.StatusOK, SessionResponse{
		Msg:          "Login successful",
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		User:         &user,
	})
}

func (h *AuthHandler) setCookies(w http.ResponseWriter, pair auth.TokenPair) {
	if !h.cookies.Emit {
		return
	}
	http.SetCookie(w, h.cookie(auth.AccessCookieName, pair.AccessToken, "/", int(h.cookies.AccessTTL.Seconds())))
	http.SetCookie(w, h.cookie(auth.RefreshCookieName, pair.RefreshToken, h.cookies.RefreshPath, int(h.cookies.RefreshTTL.Seconds())))
}

func (h *AuthHandler) cookie(name, value, path string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
}
