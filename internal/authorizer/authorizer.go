// Package authorizer implements the API Gateway REQUEST authorizer that sits
// in front of the protected routes.
//
// It verifies the bearer token once at the edge and hands the caller to the
// API as the authorizer context (principalId, role, email). The API reads
// that context back when TRUST_GATEWAY_AUTHORIZER is set; see
// auth.Authenticator.
package authorizer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/flycalcio/guestapp/internal/auth"
)

// ErrUnauthorized is the exact error API Gateway turns into a 401. Any other
// error becomes a 500.
var ErrUnauthorized = errors.New("Unauthorized")

// Verifier checks an access token.
type Verifier interface {
	Verify(ctx context.Context, token string, expected auth.TokenType) (*auth.Claims, error)
}

// Authorizer answers API Gateway authorizer invocations.
type Authorizer struct {
	tokens Verifier
	logger *slog.Logger
}

// New creates an Authorizer.
func New(tokens Verifier, logger *slog.Logger) *Authorizer {
	return &Authorizer{tokens: tokens, logger: logger}
}

// Handle verifies the request's bearer token (or access_token cookie) and
// returns an Allow policy for the invoked method.
func (a *Authorizer) Handle(ctx context.Context, req events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	token := requestToken(req)
	if token == "" {
		a.logger.Debug("authorizer: no token", slog.String("methodArn", req.MethodArn))
		return events.APIGatewayCustomAuthorizerResponse{}, ErrUnauthorized
	}

	claims, err := a.tokens.Verify(ctx, token, auth.TokenAccess)
	if err != nil {
		if errors.Is(err, auth.ErrSecretUnavailable) {
			a.logger.Error("authorizer: verifying token", slog.String("error", err.Error()))
			return events.APIGatewayCustomAuthorizerResponse{}, err
		}
		a.logger.Debug("authorizer: rejecting token", slog.String("reason", err.Error()))
		return events.APIGatewayCustomAuthorizerResponse{}, ErrUnauthorized
	}

	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID: claims.SubjectID(),
		PolicyDocument: events.APIGatewayCustomAuthorizerPolicy{
			Version: "2012-10-17",
			Statement: []events.IAMPolicyStatement{{
				Action:   []string{"execute-api:Invoke"},
				Effect:   "Allow",
				Resource: []string{req.MethodArn},
			}},
		},
		Context: map[string]any{
			"role":  string(claims.Role),
			"email": claims.Email,
		},
	}, nil
}

// requestToken finds the access token in the Authorization header, then in
// the access_token cookie. API Gateway passes header names as the client
// sent them, so the lookup ignores case.
func requestToken(req events.APIGatewayCustomAuthorizerRequestTypeRequest) string {
	h := http.Header{}
	for name, value := range req.Headers {
		h.Add(name, value)
	}

	scheme, token, ok := strings.Cut(h.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}

	r := http.Request{Header: http.Header{"Cookie": h.Values("Cookie")}}
	if c, err := r.Cookie(auth.AccessCookieName); err == nil {
		return c.Value
	}
	return ""
}
