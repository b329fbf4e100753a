package config

import "golang.org/x/crypto/bcrypt"

// Verifier is the opaque password-verification predicate spec.md §1 scopes
// out of the core ("password encryption verification... treated as an
// opaque predicate verify(candidate, stored) -> bool"). The session only
// ever calls through this interface; it never inspects a stored password's
// encoding.
type Verifier interface {
	Verify(candidate, stored string) bool
}

// BcryptVerifier is the reference implementation SPEC_FULL.md supplies:
// ConnectionClass.Password is expected to hold a bcrypt hash produced by
// HashPassword. Anything that isn't a valid bcrypt hash never matches,
// rather than falling back to a plaintext comparison.
type BcryptVerifier struct{}

// Verify reports whether candidate hashes to stored.
func (BcryptVerifier) Verify(candidate, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
}

// HashPassword produces the bcrypt hash an operator should place in a
// ConnectionClass's `password` directive.
func HashPassword(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	return string(h), err
}

// PlaintextVerifier does a byte-for-byte comparison. It exists for
// configs migrated straight from the original dircproxy (which stored
// crypt(3) hashes dircproxy itself compared opaquely) and for tests; new
// deployments should prefer BcryptVerifier.
type PlaintextVerifier struct{}

// Verify reports whether candidate equals stored exactly.
func (PlaintextVerifier) Verify(candidate, stored string) bool {
	return candidate == stored
}
