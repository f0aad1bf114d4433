package crypto

import (
	"bytes"
	"testing"
)

func TestB64URLRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0xff, 0xfe, 0xfd},
		[]byte("the quick brown fox"),
	}
	for _, c := range cases {
		encoded := B64URLEncode(c)
		decoded, err := B64URLDecode(encoded)
		if err != nil {
			t.Fatalf("decode(%q): %v", encoded, err)
		}
		if !bytes.Equal(decoded, c) {
			t.Errorf("round trip mismatch: got %v want %v", decoded, c)
		}
	}
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	iv := bytes.Repeat([]byte{0x01}, NonceSize)
	plaintext := []byte("hello edge worker")
	aad := []byte("aad-context")

	ct, err := AESGCMEncrypt(key, iv, plaintext, aad)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	pt, err := AESGCMDecrypt(key, iv, ct, aad)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("got %q want %q", pt, plaintext)
	}
}

func TestAESGCMTamperDetected(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	iv := bytes.Repeat([]byte{0x01}, NonceSize)
	ct, err := AESGCMEncrypt(key, iv, []byte("payload"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	tampered := make([]byte, len(ct))
	copy(tampered, ct)
	tampered[0] ^= 0xff

	if _, err := AESGCMDecrypt(key, iv, tampered, nil); err == nil {
		t.Fatal("expected tamper to be detected")
	}
}

func TestAESGCMWrongKeyFails(t *testing.T) {
	key1 := bytes.Repeat([]byte{0x01}, 32)
	key2 := bytes.Repeat([]byte{0x02}, 32)
	iv := bytes.Repeat([]byte{0x01}, NonceSize)

	ct, err := AESGCMEncrypt(key1, iv, []byte("payload"), nil)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := AESGCMDecrypt(key2, iv, ct, nil); err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
}

func TestCTEqual(t *testing.T) {
	a := []byte("same-value")
	b := []byte("same-value")
	c := []byte("different!")

	if !CTEqual(a, b) {
		t.Error("expected equal byte slices to compare equal")
	}
	if CTEqual(a, c) {
		t.Error("expected different byte slices to compare unequal")
	}
	if CTEqual(a, []byte("short")) {
		t.Error("expected different-length slices to compare unequal")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	password := []byte("bearer-token-string")
	salt := bytes.Repeat([]byte{0x09}, 16)

	k1 := DeriveKey(password, salt)
	k2 := DeriveKey(password, salt)
	if !bytes.Equal(k1, k2) {
		t.Error("expected deterministic derivation for identical inputs")
	}
	if len(k1) != PBKDF2KeyLen {
		t.Errorf("expected key length %d, got %d", PBKDF2KeyLen, len(k1))
	}

	otherSalt := bytes.Repeat([]byte{0x0a}, 16)
	k3 := DeriveKey(password, otherSalt)
	if bytes.Equal(k1, k3) {
		t.Error("expected different salt to produce different key")
	}
}

func TestRandomOTPCodeInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := RandomOTPCode()
		if err != nil {
			t.Fatalf("RandomOTPCode: %v", err)
		}
		if code >= otpModulus {
			t.Fatalf("code %d out of range", code)
		}
	}
}

func TestHMACSHA256Deterministic(t *testing.T) {
	key := []byte("keyphrase")
	msg := []byte("POST\n/path\nbody\n1700000000\ncust_123")

	sig1 := HMACSHA256(key, msg)
	sig2 := HMACSHA256(key, msg)
	if !bytes.Equal(sig1, sig2) {
		t.Error("expected deterministic HMAC for identical inputs")
	}
	if len(sig1) != 32 {
		t.Errorf("expected 32-byte HMAC, got %d", len(sig1))
	}
}
