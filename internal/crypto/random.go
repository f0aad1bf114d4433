// Package crypto wraps the cryptographic primitives shared by every
// component: CSPRNG, SHA-256, HMAC-SHA256, PBKDF2-SHA256, AES-GCM-256, and
// constant-time/base64url helpers. Functions are pure and hold no state.
package crypto

import (
	"crypto/rand"
	"fmt"
)

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}

// RandomUint64 returns a uniformly distributed uint64 from the CSPRNG.
func RandomUint64() (uint64, error) {
	b, err := RandomBytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}
