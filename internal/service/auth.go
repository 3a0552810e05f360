// Package service holds the business rules.
//
//	AuthHandler  (HTTP) → AuthService  → UserRepository
//	                                   ↘ TokenService, PasswordService, IdentityVerifier
//	EventHandler (HTTP) → EventService → Event/Assignment/UserRepository
//	                                   ↘ Gate
//
// Services take and return plain Go values, never requests or responses.
// Every failure the client should see is an *apperror.AppError; anything
// else is an unexpected error that the HTTP layer turns into a generic 500.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/auth"
	"github.com/flycalcio/guestapp/internal/model"
	"github.com/flycalcio/guestapp/internal/notify"
	"github.com/flycalcio/guestapp/internal/repository"
)

// Client-visible messages. Login uses one message for every credential
// failure so a response never reveals whether an email is registered.
const (
	msgRegisterMissing    = "Email and password are required"
	msgLoginMissing       = "Email and password required"
	msgPasswordTooLong    = "Password must be 72 bytes or fewer"
	msgUserExists         = "User already exists"
	msgInvalidCredentials = "Invalid credentials"
	msgGoogleTokenMissing = "Google token is required"
	msgInvalidGoogleToken = "Invalid Google token"
	msgRefreshMissing     = "Refresh token required"
	msgInvalidRefresh     = "Invalid refresh token"
)

// ExternalLoginMode selects how ExternalLogin maps a verified identity to a
// session.
type ExternalLoginMode int

const (
	// ExternalLoginResolve finds or creates the local user with the verified
	// email and issues tokens for that user. Verification failures are 401.
	ExternalLoginResolve ExternalLoginMode = iota

	// ExternalLoginLegacy keeps the behavior older clients were built
	// against: no local user, the provider's subject becomes the token
	// subject with role USER, and verification failures are 500.
	ExternalLoginLegacy
)

// PasswordHasher hashes and checks passwords. *auth.PasswordService
// implements it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
	DummyHash() string
}

// Session is what a successful login hands back to the client.
type Session struct {
	auth.TokenPair
	User model.PublicUser
}

// AuthService implements registration, login and token refresh.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenService
	passwords  PasswordHasher
	identities auth.IdentityVerifier
	notifier   notify.Notifier
	gate       *auth.Gate
	mode       ExternalLoginMode
	logger     *slog.Logger
}

// NewAuthService creates an AuthService. identities may be nil when no
// external provider is configured; ExternalLogin then always fails.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords PasswordHasher,
	identities auth.IdentityVerifier,
	notifier notify.Notifier,
	gate *auth.Gate,
	mode ExternalLoginMode,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		passwords:  passwords,
		identities: identities,
		notifier:   notifier,
		gate:       gate,
		mode:       mode,
		logger:     logger,
	}
}

// Register creates a USER account with confirmed=false and sends the
// welcome notification. No tokens are issued; the client logs in next.
//
// The email lookup up front gives the common duplicate a cheap answer, but
// it is the store's conditional create that guarantees uniqueness: two
// concurrent registrations for one email both pass the lookup and exactly
// one create succeeds.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", msgRegisterMissing)
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password", msgPasswordTooLong)
	}

	_, err := s.users.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		s.logger.Info("registration rejected: user already exists", slog.String("email", email))
		return nil, apperror.Conflict(msgUserExists)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Provider:     model.ProviderPassword,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("registration lost a race for email", slog.String("email", email))
			return nil, apperror.Conflict(msgUserExists)
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	if err := s.notifier.Notify(ctx, email, notify.WelcomeSubject, notify.WelcomeBody); err != nil {
		s.logger.Warn("welcome notification failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("email", email))
	return user, nil
}

// Login checks email and password and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", msgLoginMissing)
	}
	if len(password) > auth.MaxPasswordBytes {
		// No stored hash can match it.
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.burnVerify(password)
			s.logger.Info("login failed: unknown email", slog.String("email", email))
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if user.PasswordHash == "" {
		s.burnVerify(password)
		s.logger.Info("login failed: account has no password", slog.String("email", email))
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed: wrong password", slog.String("email", email))
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", user.ID, err)
	}
	if auth.IsLegacyHash(user.PasswordHash) {
		s.logger.Info("login with legacy password digest", slog.String("userID", user.ID))
	}

	session, err := s.session(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return session, nil
}

// burnVerify runs a password comparison whose result is discarded, so the
// failure paths without a stored hash take as long as a wrong password.
func (s *AuthService) burnVerify(password string) {
	_ = s.passwords.Verify(s.passwords.DummyHash(), password)
}

// ExternalLogin exchanges a verified external identity token for a session.
// See ExternalLoginMode for the two behaviors.
func (s *AuthService) ExternalLogin(ctx context.Context, identityToken string) (*Session, error) {
	if strings.TrimSpace(identityToken) == "" {
		return nil, apperror.ValidationFailed("google_token", msgGoogleTokenMissing)
	}
	if s.identities == nil {
		return nil, fmt.Errorf("service/auth: no identity verifier configured")
	}

	ident, err := s.identities.VerifyIdentity(ctx, identityToken)
	if err != nil {
		s.logger.Info("external login rejected", slog.String("error", err.Error()))
		if s.mode == ExternalLoginLegacy {
			return nil, apperror.Internal(msgInvalidGoogleToken)
		}
		return nil, apperror.Unauthorized(msgInvalidGoogleToken)
	}

	if s.mode == ExternalLoginLegacy {
		return s.session(ctx, &model.User{
			ID:       ident.Subject,
			Email:    ident.Email,
			Role:     model.RoleUser,
			Provider: ident.Provider,
		})
	}

	user, err := s.resolveExternalUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	session, err := s.session(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("provider", ident.Provider),
	)
	return session, nil
}

// resolveExternalUser returns the local user with the verified email,
// creating one on first login. An account registered with a password keeps
// its password and role; the provider has proven control of the same email.
func (s *AuthService) resolveExternalUser(ctx context.Context, ident *auth.ExternalIdentity) (*model.User, error) {
	user, err := s.users.FindUserByEmail(ctx, ident.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", ident.Email, err)
	}

	user = &model.User{
		Email:     ident.Email,
		Role:      model.RoleUser,
		Provider:  ident.Provider,
		Confirmed: true,
	}
	err = s.users.CreateUser(ctx, user)
	switch {
	case err == nil:
		s.logger.Info("user created from external identity",
			slog.String("userID", user.ID),
			slog.String("provider", ident.Provider),
		)
		return user, nil
	case errors.Is(err, apperror.ErrConflict):
		// A concurrent first login created it.
		user, err = s.users.FindUserByEmail(ctx, ident.Email)
		if err != nil {
			return nil, fmt.Errorf("service/auth: re-reading %s: %w", ident.Email, err)
		}
		return user, nil
	default:
		return nil, fmt.Errorf("service/auth: creating user for %s: %w", ident.Email, err)
	}
}

// Refresh verifies a refresh token and issues a new pair for the same
// subject, email and role. The old refresh token stays valid until it
// expires; there is no revocation list.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	if refreshToken == "" {
		return auth.TokenPair{}, apperror.Unauthorized(msgRefreshMissing)
	}

	claims, err := s.tokens.Verify(ctx, refreshToken, auth.TokenRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrSecretUnavailable) {
			return auth.TokenPair{}, fmt.Errorf("service/auth: refresh: %w", err)
		}
		s.logger.Info("refresh rejected", slog.String("error", err.Error()))
		return auth.TokenPair{}, apperror.Unauthorized(msgInvalidRefresh)
	}

	pair, err := s.tokens.IssuePair(ctx, claims.SubjectID(), claims.Email, claims.Role)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("service/auth: issuing tokens for %s: %w", claims.SubjectID(), err)
	}
	return pair, nil
}

// Profile returns the caller's own user record.
func (s *AuthService) Profile(ctx context.Context, id *auth.Identity) (model.PublicUser, error) {
	if err := s.gate.Authorize(id, auth.ActionProfileRead); err != nil {
		return model.PublicUser{}, err
	}

	user, err := s.users.FindUserByID(ctx, id.SubjectID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return model.PublicUser{}, apperror.NotFound("User")
		}
		return model.PublicUser{}, fmt.Errorf("service/auth: fetching user %s: %w", id.SubjectID, err)
	}
	return user.Public(), nil
}

func (s *AuthService) session(ctx context.Context, user *model.User) (*Session, error) {
	pair, err := s.tokens.IssuePair(ctx, user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing tokens for %s: %w", user.ID, err)
	}
	return &Session{TokenPair: pair, User: user.Public()}, nil
}
