package security

import (
	"fmt"
	"strings"
)

// PasswordHasher turns plaintext passwords into one-way salted digests.
// Verify returns false for a mismatch and for a digest it can't parse.
type PasswordHasher interface {
	Hash(p string) (string, error)
	Verify(p, digest string) bool
}

// Hasher hashes with one algorithm but verifies digests of either supported
// algorithm, so accounts created under a previous setting keep working.
type Hasher struct {
	primary PasswordHasher
	argon   *ArgonHash
	bcrypt  *BcryptHash
}

func NewHasher(algorithm string, argon *ArgonHash, bcrypt *BcryptHash) (*Hasher, error) {
	h := &Hasher{argon: argon, bcrypt: bcrypt}

	switch algorithm {
	case "argon2id":
		h.primary = argon
	case "bcrypt":
		h.primary = bcrypt
	default:
		return nil, fmt.Errorf("unknown password hasher %q", algorithm)
	}

	return h, nil
}

func (h *Hasher) Hash(p string) (string, error) {
	return h.primary.Hash(p)
}

func (h *Hasher) Verify(p, digest string) bool {
	switch {
	case strings.HasPrefix(digest, argonPrefix):
		return h.argon.Verify(p, digest)
	case strings.HasPrefix(digest, "$2"):
		return h.bcrypt.Verify(p, digest)
	}

	return false
}
