package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flycalcio/guestapp/internal/model"
	"github.com/flycalcio/guestapp/internal/secrets"
)

const (
	testAccessSecretName  = "jwt-access"
	testRefreshSecretName = "jwt-refresh"
)

// newTestTokenService creates a TokenService backed by fixed, distinct
// access and refresh secrets so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	store := secrets.Static{
		testAccessSecretName:  []byte("access-secret-at-least-32-bytes!"),
		testRefreshSecretName: []byte("refresh-secret-at-least-32-bytes"),
	}
	return newTokenServiceWithStore(store)
}

func newTokenServiceWithStore(store secrets.Store) *TokenService {
	return NewTokenService(store, TokenConfig{
		AccessSecretName:  testAccessSecretName,
		RefreshSecretName: testRefreshSecretName,
		AccessTTL:         10 * time.Minute,
		RefreshTTL:        24 * time.Hour,
	})
}

// countingSecrets counts fetches per secret name.
type countingSecrets struct {
	secrets.Static
	calls map[string]int
}

func (c *countingSecrets) GetSecret(ctx context.Context, name string) ([]byte, error) {
	c.calls[name]++
	return c.Static.GetSecret(ctx, name)
}

// failingStore always fails, like Secrets Manager during an outage.
type failingStore struct{}

func (failingStore) GetSecret(context.Context, string) ([]byte, error) {
	return nil, errors.New("throttled")
}

// =========================================================================
// ISSUE TESTS
// =========================================================================

func TestNewTokenService_Defaults(t *testing.T) {
	ts := NewTokenService(secrets.Static{}, TokenConfig{})

	assert.Equal(t, 10*time.Minute, ts.AccessTTL())
	assert.Equal(t, 24*time.Hour, ts.RefreshTTL())
	assert.Equal(t, DefaultIssuer, ts.cfg.Issuer)
}

func TestIssueAccessToken_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueAccessToken(context.Background(), "user-123", "a@x.com", model.RoleUser, time.Minute)
	require.NoError(t, err)

	// header.payload.signature
	assert.Equal(t, 2, strings.Count(token, "."))
}

func TestIssue_EmptySubjectRejected(t *testing.T) {
	ts := newTestTokenService(t)

	_, err := ts.IssueAccessToken(context.Background(), "", "a@x.com", model.RoleUser, time.Minute)
	assert.Error(t, err)
}

func TestIssue_SecretStoreFailure(t *testing.T) {
	ts := newTokenServiceWithStore(failingStore{})

	_, err := ts.IssueAccessToken(context.Background(), "user-123", "a@x.com", model.RoleUser, time.Minute)
	assert.ErrorIs(t, err, ErrSecretUnavailable)
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerify_RoundTripCarriesClaims(t *testing.T) {
	ts := newTestTokenService(t)
	ctx := context.Background()

	pair, err := ts.IssuePair(ctx, "user-abc", "a@x.com", model.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		typ   TokenType
	}{
		{"access", pair.AccessToken, TokenAccess},
		{"refresh", pair.RefreshToken, TokenRefresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ts.Verify(ctx, tt.token, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, "user-abc", c.SubjectID())
			assert.Equal(t, "a@x.com", c.Email)
			assert.Equal(t, model.RoleAdmin, c.Role)
			assert.Equal(t, tt.typ, c.Type)
			assert.Equal(t, DefaultIssuer, c.Issuer)
		})
	}
}

func TestVerify_TypesDoNotCross(t *testing.T) {
	ts := newTestTokenService(t)
	ctx := context.Background()

	pair, err := ts.IssuePair(ctx, "user-abc", "a@x.com", model.RoleUser)
	require.NoError(t, err)

	_, err = ts.Verify(ctx, pair.AccessToken, TokenRefresh)
	assert.Error(t, err, "access token must not verify as refresh")

	_, err = ts.Verify(ctx, pair.RefreshToken, TokenAccess)
	assert.Error(t, err, "refresh token must not verify as access")
}

func TestVerify_TypeClaimCheckedEvenWithSharedSecret(t *testing.T) {
	// A misconfigured deployment might point both names at the same secret;
	// the type claim still keeps the two apart.
	shared := []byte("shared-secret-at-least-32-bytes!")
	ts := newTokenServiceWithStore(secrets.Static{
		testAccessSecretName:  shared,
		testRefreshSecretName: shared,
	})
	ctx := context.Background()

	pair, err := ts.IssuePair(ctx, "user-abc", "a@x.com", model.RoleUser)
	require.NoError(t, err)

	_, err = ts.Verify(ctx, pair.AccessToken, TokenRefresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = ts.Verify(ctx, pair.RefreshToken, TokenAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestVerify_ExpiredWinsOverSignature(t *testing.T) {
	ts := newTestTokenService(t)
	ctx := context.Background()

	expired, err := ts.IssueAccessToken(ctx, "user-123", "a@x.com", model.RoleUser, -time.Second)
	require.NoError(t, err)

	// Valid signature, past exp.
	_, err = ts.Verify(ctx, expired, TokenAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)

	// Wrong signature, past exp: still reported as expired.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	forgedStr, err := forged.SignedString([]byte("not-the-real-secret-xxxxxxxxxxxx"))
	require.NoError(t, err)

	_, err = ts.Verify(ctx, forgedStr, TokenAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	other := newTokenServiceWithStore(secrets.Static{
		testAccessSecretName:  []byte("some-other-secret-32-bytes-long!"),
		testRefreshSecretName: []byte("refresh-secret-at-least-32-bytes"),
	})
	ts := newTestTokenService(t)
	ctx := context.Background()

	token, err := other.IssueAccessToken(ctx, "user-123", "a@x.com", model.RoleUser, time.Minute)
	require.NoError(t, err)

	_, err = ts.Verify(ctx, token, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Malformed(t *testing.T) {
	ts := newTestTokenService(t)

	for _, token := range []string{"", "not-a-jwt", "not.a.jwt.token", "a.b.c"} {
		t.Run(token, func(t *testing.T) {
			_, err := ts.Verify(context.Background(), token, TokenAccess)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestVerify_MissingExpIsMalformed(t *testing.T) {
	ts := newTestTokenService(t)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type:             TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123", Issuer: DefaultIssuer},
	})
	s, err := tok.SignedString([]byte("access-secret-at-least-32-bytes!"))
	require.NoError(t, err)

	_, err = ts.Verify(context.Background(), s, TokenAccess)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestVerify_SecretStoreFailureIsDistinct(t *testing.T) {
	good := newTestTokenService(t)
	ctx := context.Background()

	token, err := good.IssueAccessToken(ctx, "user-123", "a@x.com", model.RoleUser, time.Minute)
	require.NoError(t, err)

	broken := newTokenServiceWithStore(failingStore{})
	_, err = broken.Verify(ctx, token, TokenAccess)
	assert.ErrorIs(t, err, ErrSecretUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_RetriesAfterRotation(t *testing.T) {
	backing := secrets.Static{
		testAccessSecretName:  []byte("old-access-secret-32-bytes-long!"),
		testRefreshSecretName: []byte("refresh-secret-at-least-32-bytes"),
	}
	now := time.Now()
	cache := secrets.NewCache(backing, time.Hour, secrets.WithClock(func() time.Time { return now }))
	ts := newTokenServiceWithStore(cache)
	ctx := context.Background()

	// Prime the cache with the old key.
	_, err := ts.IssueAccessToken(ctx, "user-123", "a@x.com", model.RoleUser, time.Minute)
	require.NoError(t, err)
	now = now.Add(secrets.DefaultMinRefreshAge)

	// Rotate, and mint a token elsewhere with the new key.
	backing[testAccessSecretName] = []byte("new-access-secret-32-bytes-long!")
	fresh := newTokenServiceWithStore(backing)
	token, err := fresh.IssueAccessToken(ctx, "user-123", "a@x.com", model.RoleUser, time.Minute)
	require.NoError(t, err)

	c, err := ts.Verify(ctx, token, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-123", c.SubjectID())
}

func TestVerify_BadSignaturesDoNotBypassCache(t *testing.T) {
	backing := &countingSecrets{
		Static: secrets.Static{
			testAccessSecretName:  []byte("access-secret-at-least-32-bytes!"),
			testRefreshSecretName: []byte("refresh-secret-at-least-32-bytes"),
		},
		calls: make(map[string]int),
	}
	now := time.Now()
	cache := secrets.NewCache(backing, time.Hour, secrets.WithClock(func() time.Time { return now }))
	ts := newTokenServiceWithStore(cache)
	ctx := context.Background()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("not-the-real-secret-xxxxxxxxxxxx"))
	require.NoError(t, err)
	access, err := ts.IssueAccessToken(ctx, "user-123", "a@x.com", model.RoleUser, time.Hour)
	require.NoError(t, err)
	_, err = ts.Verify(ctx, access, TokenRefresh)
	require.Error(t, err)

	for i := 0; i < 100; i++ {
		_, err := ts.Verify(ctx, forged, TokenAccess)
		assert.ErrorIs(t, err, ErrInvalidSignature)
		// An access token offered as a refresh token fails the refresh
		// secret's signature check.
		_, err = ts.Verify(ctx, access, TokenRefresh)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}
	assert.Equal(t, 1, backing.calls[testAccessSecretName])
	assert.Equal(t, 1, backing.calls[testRefreshSecretName])

	// Once the entry is old enough, one bad signature may refetch it.
	now = now.Add(secrets.DefaultMinRefreshAge)
	for i := 0; i < 100; i++ {
		_, err := ts.Verify(ctx, forged, TokenAccess)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}
	assert.Equal(t, 2, backing.calls[testAccessSecretName])
}

func TestVerify_ValidAtExactExpiry(t *testing.T) {
	ts := newTestTokenService(t)
	ctx := context.Background()
	issuedAt := time.Unix(time.Now().Unix(), 0)
	ts.now = func() time.Time { return issuedAt }

	token, err := ts.IssueAccessToken(ctx, "user-123", "a@x.com", model.RoleUser, time.Minute)
	require.NoError(t, err)

	ts.now = func() time.Time { return issuedAt.Add(time.Minute) }
	_, err = ts.Verify(ctx, token, TokenAccess)
	require.NoError(t, err)

	ts.now = func() time.Time { return issuedAt.Add(time.Minute + time.Second) }
	_, err = ts.Verify(ctx, token, TokenAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_AccessTokenWithoutTypeClaimAccepted(t *testing.T) {
	ts := newTestTokenService(t)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "a@x.com",
		Role:  model.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	s, err := tok.SignedString([]byte("access-secret-at-least-32-bytes!"))
	require.NoError(t, err)

	c, err := ts.Verify(context.Background(), s, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-123", c.SubjectID())
}
