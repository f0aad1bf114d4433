// Package cipher implements ResponseCipher: the response encryption
// envelope (v5) keyed off the caller's bearer token, its two-stage variant
// for custodial re-disclosure, and response field filtering.
package cipher

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/crypto"
)

// EnvelopeVersion5 is the default, current envelope format.
const EnvelopeVersion5 byte = 5

// EnvelopeVersion4 is the legacy binary envelope format, still decodable.
const EnvelopeVersion4 byte = 4

const saltLen = 16
const ivLen = crypto.NonceSize
const hashLen = 32

// compressionThreshold: compress only when it saves more than 5%.
const compressionThreshold = 0.95

// Encrypt builds a v5 envelope encrypting plaintext under a key derived
// from token. Layout:
//
//	version(1B)=5 | saltLen(1B)=16 | ivLen(1B)=12 | hashLen(1B)=32
//	salt(16B) | iv(12B) | tokenHash(32B) | compressedFlag(1B) | ciphertext||tag
func Encrypt(token string, plaintext []byte) ([]byte, error) {
	salt, err := crypto.RandomBytes(saltLen)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	iv, err := crypto.RandomBytes(ivLen)
	if err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}

	payload := plaintext
	compressed := byte(0)
	if gz, err := gzipBytes(plaintext); err == nil && float64(len(gz)) < float64(len(plaintext))*compressionThreshold {
		payload = gz
		compressed = 1
	}

	key := crypto.DeriveKey([]byte(token), salt)
	ciphertext, err := crypto.AESGCMEncrypt(key, iv, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("encrypting envelope: %w", err)
	}

	tokenHash := crypto.SHA256([]byte(token))

	var buf bytes.Buffer
	buf.WriteByte(EnvelopeVersion5)
	buf.WriteByte(saltLen)
	buf.WriteByte(ivLen)
	buf.WriteByte(hashLen)
	buf.Write(salt)
	buf.Write(iv)
	buf.Write(tokenHash[:])
	buf.WriteByte(compressed)
	buf.Write(ciphertext)

	return buf.Bytes(), nil
}

// Decrypt reverses Encrypt, verifying the token binding before attempting
// any cryptographic operation. Any failure — unsupported version, token
// mismatch, tamper, malformed envelope — surfaces uniformly as
// apperr.KindDecryptionFailed; no side channel distinguishes the cause.
func Decrypt(token string, envelope []byte) ([]byte, error) {
	if len(envelope) < 4 {
		return nil, decryptionFailed("envelope too short")
	}

	version := envelope[0]
	if version != EnvelopeVersion5 {
		// v3 is referenced in historical envelope comments but has no
		// active decoder; v4 legacy binary has its own pipeline
		// (internal/blob). Reject anything else without attempting PBKDF2.
		return nil, decryptionFailed("unsupported envelope version")
	}

	gotSaltLen := int(envelope[1])
	gotIVLen := int(envelope[2])
	gotHashLen := int(envelope[3])
	if gotSaltLen != saltLen || gotIVLen != ivLen || gotHashLen != hashLen {
		return nil, decryptionFailed("unexpected envelope field lengths")
	}

	headerLen := 4
	want := headerLen + saltLen + ivLen + hashLen + 1
	if len(envelope) < want {
		return nil, decryptionFailed("truncated envelope")
	}

	off := headerLen
	salt := envelope[off : off+saltLen]
	off += saltLen
	iv := envelope[off : off+ivLen]
	off += ivLen
	tokenHash := envelope[off : off+hashLen]
	off += hashLen
	compressed := envelope[off]
	off++
	ciphertext := envelope[off:]

	expectedHash := crypto.SHA256([]byte(token))
	if !crypto.CTEqual(expectedHash[:], tokenHash) {
		return nil, decryptionFailed("token mismatch")
	}

	key := crypto.DeriveKey([]byte(token), salt)
	payload, err := crypto.AESGCMDecrypt(key, iv, ciphertext, nil)
	if err != nil {
		return nil, decryptionFailed("authentication tag mismatch")
	}

	if compressed == 1 {
		payload, err = gunzipBytes(payload)
		if err != nil {
			return nil, decryptionFailed("decompression failed")
		}
	}

	return payload, nil
}

func decryptionFailed(detail string) error {
	return apperr.New(apperr.KindDecryptionFailed, "response decryption failed").WithDetail(detail)
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
