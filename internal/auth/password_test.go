package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

// =========================================================================
// HELPER
// =========================================================================

// newTestPasswordService returns a PasswordService with bcrypt cost 4, the
// minimum allowed, so tests run in milliseconds.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceWithCost(4)
}

func legacyDigest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
	if IsLegacyHash(hash) {
		t.Error("a bcrypt hash must not be classified as legacy")
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_RejectsPasswordOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	_, err := ps.Hash(strings.Repeat("a", 73))
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Hash() error = %v, want ErrPasswordTooLong", err)
	}
}

func TestHash_AcceptsPasswordExactly72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got error: %v", err)
	}
}

func TestNewPasswordServiceWithCost_OutOfRangeFallsBack(t *testing.T) {
	ps := NewPasswordServiceWithCost(99)
	if ps.cost != defaultCost {
		t.Errorf("cost = %d, want %d", ps.cost, defaultCost)
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify_CorrectPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if err := ps.Verify(hash, "correct-horse-battery-staple"); err != nil {
		t.Errorf("Verify() should return nil for a correct password, got: %v", err)
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, _ := ps.Hash("the-real-password")

	err := ps.Verify(hash, "the-wrong-password")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("Verify() error = %v, want ErrPasswordMismatch", err)
	}
}

func TestVerify_GarbageHash(t *testing.T) {
	ps := newTestPasswordService()

	err := ps.Verify("not-a-valid-bcrypt-hash", "password")
	if err == nil {
		t.Fatal("Verify() should return an error for a garbage hash")
	}
	if errors.Is(err, ErrPasswordMismatch) {
		t.Error("a corrupt hash should not be reported as a plain mismatch")
	}
}

func TestVerify_LegacyDigest(t *testing.T) {
	ps := newTestPasswordService()
	digest := legacyDigest("p1")

	if !IsLegacyHash(digest) {
		t.Fatalf("IsLegacyHash(%q) = false, want true", digest)
	}
	if err := ps.Verify(digest, "p1"); err != nil {
		t.Errorf("Verify() legacy digest with correct password: %v", err)
	}
	if err := ps.Verify(digest, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() legacy digest with wrong password = %v, want ErrPasswordMismatch", err)
	}
}

func TestDummyHash_StableAtConfiguredCost(t *testing.T) {
	ps := newTestPasswordService()

	dummy := ps.DummyHash()
	if !strings.HasPrefix(dummy, "$2a$04$") {
		t.Fatalf("DummyHash() = %q, want a cost-4 bcrypt hash", dummy)
	}
	if again := ps.DummyHash(); again != dummy {
		t.Error("DummyHash() must be computed once")
	}
	if err := ps.Verify(dummy, "password123"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify(DummyHash()) = %v, want ErrPasswordMismatch", err)
	}
}

// =========================================================================
// ROUND-TRIP TEST
// =========================================================================

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	cases := []struct {
		name     string
		password string
	}{
		{"simple alphanumeric", "hello123"},
		{"special characters", "p@$$w0rd!#%"},
		{"unicode", "пароль-密码"},
		{"whitespace", "  leading and trailing  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hash, err := ps.Hash(tc.password)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", tc.password, err)
			}
			if err := ps.Verify(hash, tc.password); err != nil {
				t.Errorf("Verify() failed for %q: %v", tc.password, err)
			}
		})
	}
}
