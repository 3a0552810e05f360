// Package auth provides credential hashing, token issuance and verification,
// identity verification against Google, and the role gate used by every
// protected route.
//
// SESSION FLOW OVERVIEW:
//  1. Client posts email+password (or a Google ID token) to /auth/login
//     (or /auth/google).
//  2. Server verifies the credential and issues an access token and a
//     refresh token, each signed with its own secret.
//  3. Protected routes read the access token (Authorization header or
//     access_token cookie), verify it, and put the Identity in the request
//     context.
//  4. When the access token expires the client posts its refresh token to
//     /auth/refresh and receives a fresh pair.
//
// TOKEN STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<userId>","email":"...","role":"USER","type":"access","iat":...,"exp":...,"iss":"guestapp"}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
//
// Access and refresh tokens are signed with different secrets: a leaked
// access secret cannot mint refresh tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flycalcio/guestapp/internal/model"
	"github.com/flycalcio/guestapp/internal/secrets"
)

// TokenType discriminates access tokens from refresh tokens. It selects the
// signing secret and is carried in the "type" claim.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// DefaultIssuer is the "iss" claim written into every token.
const DefaultIssuer = "guestapp"

// Verification failures. They stay distinct here so callers can log them;
// the service layer collapses all of them except ErrSecretUnavailable into a
// single 401.
var (
	ErrExpiredToken      = errors.New("auth: token expired")
	ErrInvalidSignature  = errors.New("auth: token signature invalid")
	ErrMalformedToken    = errors.New("auth: token malformed")
	ErrWrongTokenType    = errors.New("auth: wrong token type")
	ErrSecretUnavailable = errors.New("auth: signing secret unavailable")
)

// Claims is the token payload.
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	Type  TokenType  `json:"type"`
	jwt.RegisteredClaims
}

// SubjectID returns the "sub" claim, the user's ID.
func (c *Claims) SubjectID() string { return c.Subject }

// TokenConfig names the secrets and lifetimes a TokenService uses.
type TokenConfig struct {
	AccessSecretName  string
	RefreshSecretName string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	Issuer            string
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// invalidator is implemented by secret stores that cache, like
// *secrets.Cache. Invalidate reports whether the cached value was dropped.
type invalidator interface {
	Invalidate(name string) bool
}

// TokenService signs and verifies access and refresh tokens.
//
// It holds no key material: every Issue and Verify asks the secret store, so
// rotation in the backing store takes effect without a restart. Put a
// *secrets.Cache in front of a remote store to avoid a round trip per call.
type TokenService struct {
	secrets secrets.Store
	cfg     TokenConfig
	now     func() time.Time
}

// NewTokenService creates a TokenService. Zero TTLs fall back to 10 minutes
// (access) and 24 hours (refresh); an empty issuer falls back to
// DefaultIssuer.
func NewTokenService(store secrets.Store, cfg TokenConfig) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 10 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	return &TokenService{secrets: store, cfg: cfg, now: time.Now}
}

// AccessTTL is the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL is the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// IssueAccessToken signs an access token for the subject, valid for ttl.
func (s *TokenService) IssueAccessToken(ctx context.Context, subjectID, email string, role model.Role, ttl time.Duration) (string, error) {
	return s.issue(ctx, TokenAccess, subjectID, email, role, ttl)
}

// IssueRefreshToken signs a refresh token (type "refresh") with the refresh
// secret, valid for ttl.
func (s *TokenService) IssueRefreshToken(ctx context.Context, subjectID, email string, role model.Role, ttl time.Duration) (string, error) {
	return s.issue(ctx, TokenRefresh, subjectID, email, role, ttl)
}

// IssuePair signs an access and a refresh token with the configured
// lifetimes.
func (s *TokenService) IssuePair(ctx context.Context, subjectID, email string, role model.Role) (TokenPair, error) {
	access, err := s.IssueAccessToken(ctx, subjectID, email, role, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(ctx, subjectID, email, role, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) issue(ctx context.Context, typ TokenType, subjectID, email string, role model.Role, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", errors.New("auth: token subject is empty")
	}

	key, err := s.secret(ctx, typ)
	if err != nil {
		return "", err
	}

	now := s.now()
	c := Claims{
		Email: email,
		Role:  role,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.cfg.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify parses tokenStr, checks that it has not expired, that it was signed
// with the secret for expected, and that its type claim matches.
//
// ORDER OF CHECKS:
// Expiry is read from the unverified payload first, so a token past its
// "exp" always yields ErrExpiredToken, whatever its signature. Only then is
// the signature checked. A signature mismatch triggers one retry when the
// cache agrees to drop its secret, which covers a rotation that happened
// within the cache TTL. The cache refuses for entries it fetched recently,
// so forged tokens cannot force a store round trip per request.
func (s *TokenService) Verify(ctx context.Context, tokenStr string, expected TokenType) (*Claims, error) {
	unverified := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, unverified); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if unverified.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}
	if s.now().After(unverified.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}

	c, err := s.verifySigned(ctx, tokenStr, expected)
	if errors.Is(err, ErrInvalidSignature) {
		if inv, ok := s.secrets.(invalidator); ok && inv.Invalidate(s.secretName(expected)) {
			c, err = s.verifySigned(ctx, tokenStr, expected)
		}
	}
	if err != nil {
		return nil, err
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrMalformedToken)
	}
	// Access tokens minted before the type claim existed carry no type.
	if c.Type != expected && !(expected == TokenAccess && c.Type == "") {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, c.Type, expected)
	}
	return c, nil
}

func (s *TokenService) verifySigned(ctx context.Context, tokenStr string, expected TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			// Reject anything that isn't HMAC ("none", RS256 with a public key
			// used as HMAC secret, ...).
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret(ctx, expected)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		// Verify has already rejected now > exp; the library alone would
		// also reject now == exp.
		jwt.WithLeeway(time.Second),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrSecretUnavailable):
			return nil, err
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
		}
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrMalformedToken)
	}
	return c, nil
}

func (s *TokenService) secretName(typ TokenType) string {
	if typ == TokenRefresh {
		return s.cfg.RefreshSecretName
	}
	return s.cfg.AccessSecretName
}

func (s *TokenService) secret(ctx context.Context, typ TokenType) ([]byte, error) {
	name := s.secretName(typ)
	key, err := s.secrets.GetSecret(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSecretUnavailable, name, err)
	}
	return key, nil
}
