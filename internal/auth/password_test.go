package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t testing.TB) *BcryptHasher {
	t.Helper()
	h, err := NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcryptHasher: %v", err)
	}
	return h
}

func TestBcryptHasher_HashVerify(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "correct horse" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("hash does not look like bcrypt: %q", hash)
	}
	if !h.Verify("correct horse", hash) {
		t.Fatalf("Verify rejected the original password")
	}
	if h.Verify("correct horse!", hash) {
		t.Fatalf("Verify accepted a different password")
	}
}

func TestBcryptHasher_SaltsEveryHash(t *testing.T) {
	h := newTestHasher(t)
	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of one password should differ")
	}
	if !h.Verify("same-password", a) || !h.Verify("same-password", b) {
		t.Fatalf("both hashes should verify")
	}
}

func TestBcryptHasher_MalformedHashIsMismatch(t *testing.T) {
	h := newTestHasher(t)
	for _, hash := range []string{"", "not-a-hash", "$2a$04$short"} {
		if h.Verify("anything", hash) {
			t.Fatalf("Verify(%q) = true, want false", hash)
		}
	}
}

func TestNewBcryptHasher_CostBounds(t *testing.T) {
	if _, err := NewBcryptHasher(bcrypt.MinCost - 1); err == nil {
		t.Fatalf("expected error below min cost")
	}
	if _, err := NewBcryptHasher(bcrypt.MaxCost + 1); err == nil {
		t.Fatalf("expected error above max cost")
	}
}
