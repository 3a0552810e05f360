// Package auth: password hashing utilities.
//
// New passwords are hashed with bcrypt, which salts every hash and is slow
// on purpose. The output is self-contained:
//
//	$2a$12$<22-char salt><31-char hash>
//
// Accounts migrated from the previous system still carry an unsalted SHA-256
// hex digest. Those are verified (in constant time) but never produced.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor: roughly 250ms per hash on current
// server hardware.
const defaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer inputs are rejected rather
// than silently truncated.
const MaxPasswordBytes = 72

var (
	ErrPasswordMismatch = errors.New("auth: invalid password")
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
)

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected: tests
// use the minimum cost of 4.
type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummy     string
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceWithCost creates a PasswordService with a custom bcrypt
// cost. Values outside bcrypt's range fall back to the default.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored hash.
//
// Returns nil on a match and ErrPasswordMismatch (possibly wrapped) when the
// password is wrong. Any other error means the stored hash is unusable.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if IsLegacyHash(hash) {
		sum := sha256.Sum256([]byte(plaintext))
		want := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(want), []byte(hash)) != 1 {
			return ErrPasswordMismatch
		}
		return nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// DummyHash returns a bcrypt hash at the configured cost that no user
// password matches. Login compares against it when there is no stored hash,
// so an unknown email costs the same as a wrong password.
func (p *PasswordService) DummyHash() string {
	p.dummyOnce.Do(func() {
		hashed, err := bcrypt.GenerateFromPassword([]byte("guestapp: no such account"), p.cost)
		if err == nil {
			p.dummy = string(hashed)
		}
	})
	return p.dummy
}

// IsLegacyHash reports whether hash is an unsalted SHA-256 hex digest.
func IsLegacyHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
