package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/strixun/edgecore/internal/apperr"
)

// NonceSize is the standard AES-GCM nonce length in bytes.
const NonceSize = 12

// AESGCMEncrypt encrypts plaintext under key (must be 32 bytes) with the
// given 12-byte iv and optional associated data, returning ciphertext||tag.
func AESGCMEncrypt(key, iv, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", NonceSize, len(iv))
	}
	return gcm.Seal(nil, iv, plaintext, aad), nil
}

// AESGCMDecrypt decrypts ciphertext (ciphertext||tag) under key and iv. Any
// failure — bad key, bad tag, malformed input — surfaces as the single
// apperr.KindCrypto error; callers at a component boundary remap this to
// apperr.KindDecryptionFailed so no side channel distinguishes the cause.
func AESGCMDecrypt(key, iv, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != NonceSize {
		return nil, apperr.New(apperr.KindCrypto, "invalid nonce size")
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCrypto, "authentication tag mismatch", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCrypto, "constructing aes cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCrypto, "constructing gcm", err)
	}
	return gcm, nil
}
