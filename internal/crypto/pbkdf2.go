package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the fixed iteration count for password-to-key
// derivation. Any change is a breaking format change for every envelope
// already in flight — do not tune this at runtime.
const PBKDF2Iterations = 100_000

// PBKDF2KeyLen is the derived key length in bytes (AES-256).
const PBKDF2KeyLen = 32

// DeriveKey derives a 256-bit AES key from password and salt using
// PBKDF2-HMAC-SHA256 with the fixed iteration count above.
func DeriveKey(password []byte, salt []byte) []byte {
	return pbkdf2.Key(password, salt, PBKDF2Iterations, PBKDF2KeyLen, sha256.New)
}
