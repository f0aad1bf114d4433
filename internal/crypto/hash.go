package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// SHA256 returns the 32-byte SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HMACSHA256 returns the 32-byte HMAC-SHA256 of msg under key.
func HMACSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// CTEqual reports whether a and b are equal, in constant time with respect
// to their contents. Differing lengths are not constant time (there is
// nothing secret to protect in a length mismatch).
func CTEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
