package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/strixun/edgecore/internal/crypto"
	"github.com/strixun/edgecore/pkg/cipher"
)

func TestPipelineV5RoundTrip(t *testing.T) {
	p := NewPipeline(NewMemoryBackend())
	ctx := context.Background()
	token := "tok_abc123"
	plaintext := []byte("hello binary world")

	envelope, err := cipher.Encrypt(token, plaintext)
	if err != nil {
		t.Fatalf("encrypting: %v", err)
	}

	r2Key, meta, err := p.Upload(ctx, token, "cust_1", "application/octet-stream", envelope)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if meta.EncryptionFormat != FormatBinaryV5 {
		t.Fatalf("expected binary-v5, got %s", meta.EncryptionFormat)
	}

	got, gotMeta, err := p.Download(ctx, token, r2Key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, plaintext)
	}
	if gotMeta.CustomerID != "cust_1" {
		t.Fatalf("customer id not preserved: %q", gotMeta.CustomerID)
	}

	if _, _, err := p.Download(ctx, "wrong-token", r2Key); err == nil {
		t.Fatal("expected decryption failure with wrong token")
	}
}

func TestPipelineV4LegacyRoundTrip(t *testing.T) {
	p := NewPipeline(NewMemoryBackend())
	ctx := context.Background()
	token := "tok_legacy"
	plaintext := []byte("legacy payload")

	key := legacyKey(token)
	iv, err := crypto.RandomBytes(crypto.NonceSize)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext, err := crypto.AESGCMEncrypt(key, iv, plaintext, nil)
	if err != nil {
		t.Fatal(err)
	}
	raw := append([]byte{4}, append(iv, ciphertext...)...)

	r2Key, meta, err := p.Upload(ctx, token, "cust_2", "application/octet-stream", raw)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if meta.EncryptionFormat != FormatBinaryV4 {
		t.Fatalf("expected binary-v4, got %s", meta.EncryptionFormat)
	}

	got, _, err := p.Download(ctx, token, r2Key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, plaintext)
	}
}

func TestPipelineRejectsUnknownVersion(t *testing.T) {
	p := NewPipeline(NewMemoryBackend())
	if _, _, err := p.Upload(context.Background(), "tok", "cust", "application/octet-stream", []byte{3, 1, 2, 3}); err == nil {
		t.Fatal("expected rejection of version byte 3")
	}
}

func TestPipelineLegacyJSONRoundTrip(t *testing.T) {
	p := NewPipeline(NewMemoryBackend())
	ctx := context.Background()
	token := "tok_json"
	plaintext := []byte(`{"field":"value"}`)

	key := legacyKey(token)
	iv, _ := crypto.RandomBytes(crypto.NonceSize)
	ciphertext, err := crypto.AESGCMEncrypt(key, iv, plaintext, nil)
	if err != nil {
		t.Fatal(err)
	}
	env := legacyJSONEnvelope{
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	r2Key, meta, err := p.Upload(ctx, token, "cust_3", legacyJSONContentType, raw)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if meta.EncryptionFormat != FormatLegacyJSON {
		t.Fatalf("expected legacy-json, got %s", meta.EncryptionFormat)
	}

	got, _, err := p.Download(ctx, token, r2Key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, plaintext)
	}
}
