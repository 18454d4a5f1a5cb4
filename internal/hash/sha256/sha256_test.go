// Package sha256 verifies the hashing helper.
package sha256

import "testing"

// TestHasherHash ensures we emit the expected SHA-256 hex digest.
func TestHasherHash(t *testing.T) {
	t.Parallel()

	h := New()
	got := h.Hash([]byte("hello"))
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Fatalf("Hash() = %s, want %s", got, want)
	}
}

// TestHasherHashStringsSeparatesParts guards against ambiguous concatenation.
func TestHasherHashStringsSeparatesParts(t *testing.T) {
	t.Parallel()

	h := New()
	if h.HashStrings("ab", "c") == h.HashStrings("a", "bc") {
		t.Fatal("expected distinct digests for different part boundaries")
	}
	if h.HashStrings("x") != h.Hash([]byte("x")) {
		t.Fatal("expected single part to match Hash")
	}
}
