package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// SecretVerifier checks the shared admin secret. A bcrypt hash, when
// configured, takes precedence over the plain value.
type SecretVerifier struct {
	plain []byte
	hash  []byte
}

// NewSecretVerifier builds a verifier. With neither value set every attempt fails.
func NewSecretVerifier(secret, hash string) *SecretVerifier {
	return &SecretVerifier{plain: []byte(secret), hash: []byte(hash)}
}

// Verify reports whether candidate matches the configured secret.
func (v *SecretVerifier) Verify(candidate string) bool {
	if len(v.hash) > 0 {
		return bcrypt.CompareHashAndPassword(v.hash, []byte(candidate)) == nil
	}
	if len(v.plain) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(v.plain, []byte(candidate)) == 1
}

// HashSecret hashes a plaintext secret with configured cost.
func HashSecret(secret string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
