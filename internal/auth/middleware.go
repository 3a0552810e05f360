package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"

	"github.com/flycalcio/guestapp/internal/model"
)

// Cookie names used when cookie delivery is enabled.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// ErrNoCredentials means the request carried neither a bearer token, an
// access_token cookie, nor an upstream authorizer identity.
var ErrNoCredentials = errors.New("auth: no credentials")

// Authenticator turns an incoming request into an Identity.
//
// IDENTITY SOURCES, in order:
//  1. When trustGateway is set and the request came through API Gateway
//     (via the Lambda proxy adapter), the identity the upstream request
//     authorizer already verified: principalId plus the role and email it
//     put in the authorizer context.
//  2. An access token from "Authorization: Bearer <token>".
//  3. An access token from the access_token cookie.
type Authenticator struct {
	tokens       *TokenService
	trustGateway bool
	logger       *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens *TokenService, trustGateway bool, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, trustGateway: trustGateway, logger: logger}
}

// RequireAuth is a middleware that enforces authentication on protected
// routes.
//
// On success the Identity is stored in the request context (read it back
// with IdentityFromContext). A missing or invalid credential stops the chain
// with 401; a signing-secret outage stops it with 500 so that clients don't
// throw away a perfectly good session.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Identify(r)
		if err != nil {
			if errors.Is(err, ErrSecretUnavailable) {
				a.logger.Error("verifying access token", slog.String("error", err.Error()))
				writeMsg(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			a.logger.Debug("rejecting request", slog.String("path", r.URL.Path), slog.String("reason", err.Error()))
			writeMsg(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Identify resolves the caller of r without writing a response.
func (a *Authenticator) Identify(r *http.Request) (*Identity, error) {
	if a.trustGateway {
		if id, ok := gatewayIdentity(r); ok {
			return id, nil
		}
	}

	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(AccessCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil, ErrNoCredentials
	}

	claims, err := a.tokens.Verify(r.Context(), token, TokenAccess)
	if err != nil {
		return nil, err
	}
	return &Identity{SubjectID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// gatewayIdentity reads the REST API authorizer context the Lambda proxy
// adapter attaches to the request. Context values set by a Lambda authorizer
// arrive flattened next to principalId.
func gatewayIdentity(r *http.Request) (*Identity, bool) {
	gw, ok := core.GetAPIGatewayContextFromContext(r.Context())
	if !ok || gw.Authorizer == nil {
		return nil, false
	}
	principal := authorizerString(gw.Authorizer, "principalId")
	if principal == "" {
		return nil, false
	}
	return &Identity{
		SubjectID: principal,
		Email:     authorizerString(gw.Authorizer, "email"),
		Role:      model.Role(authorizerString(gw.Authorizer, "role")),
	}, true
}

func authorizerString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>". The
// scheme is matched case-insensitively.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// writeMsg writes the {"msg": "..."} error envelope. The handler package has
// its own copy; this one exists because handler imports auth.
func writeMsg(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}
