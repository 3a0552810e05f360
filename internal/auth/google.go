package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/flycalcio/guestapp/internal/model"
)

// Google's issuer and signing keys. go-oidc also accepts the scheme-less
// "accounts.google.com" issuer Google sometimes emits.
const (
	GoogleIssuer  = "https://accounts.google.com"
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// ErrIdentityRejected is returned when an external identity token fails
// verification for any reason (signature, audience, expiry, claims).
var ErrIdentityRejected = errors.New("auth: identity token rejected")

// ExternalIdentity is what a verified identity token tells us about the user.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
}

// IdentityVerifier verifies a third-party identity assertion.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, rawToken string) (*ExternalIdentity, error)
}

// GoogleVerifier verifies Google ID tokens (from Google Sign-In or One Tap)
// for a single OAuth client ID.
//
// It talks to no Google endpoint except the JWKS: the token's signature,
// issuer, audience, and expiry are all checked locally by go-oidc, and the
// key set is fetched lazily and cached.
type GoogleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleVerifier creates a verifier for tokens minted for clientID.
//
// The context is used only for background JWKS refreshes; cancelling it does
// not stop verification.
func NewGoogleVerifier(ctx context.Context, clientID string) *GoogleVerifier {
	keys := oidc.NewRemoteKeySet(ctx, GoogleJWKSURL)
	return NewGoogleVerifierWithKeySet(clientID, keys)
}

// NewGoogleVerifierWithKeySet is NewGoogleVerifier with an explicit key set.
// Tests pass an *oidc.StaticKeySet.
func NewGoogleVerifierWithKeySet(clientID string, keys oidc.KeySet) *GoogleVerifier {
	return &GoogleVerifier{
		verifier: oidc.NewVerifier(GoogleIssuer, keys, &oidc.Config{
			ClientID:             clientID,
			SupportedSigningAlgs: []string{oidc.RS256},
		}),
	}
}

// googleClaims are the ID token claims beyond the standard ones.
// email_verified arrives as a JSON bool or, from older clients, the string
// "true"/"false".
type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
}

func (c googleClaims) emailUnverified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return !v
	case string:
		return v == "false"
	}
	return false
}

// VerifyIdentity verifies rawToken and returns the Google subject and email.
//
// A token without an email, or with email_verified=false, is rejected: the
// email is what links the Google account to a local user.
func (g *GoogleVerifier) VerifyIdentity(ctx context.Context, rawToken string) (*ExternalIdentity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrIdentityRejected)
	}

	idToken, err := g.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentityRejected, err)
	}

	var c googleClaims
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("%w: decoding claims: %w", ErrIdentityRejected, err)
	}
	if c.Email == "" {
		return nil, fmt.Errorf("%w: no email claim", ErrIdentityRejected)
	}
	if c.emailUnverified() {
		return nil, fmt.Errorf("%w: email not verified", ErrIdentityRejected)
	}

	return &ExternalIdentity{
		Provider: model.ProviderGoogle,
		Subject:  idToken.Subject,
		Email:    c.Email,
	}, nil
}
