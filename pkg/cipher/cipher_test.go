package cipher

import (
	"bytes"
	"strings"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	token := "a-bearer-token-value"
	plaintext := []byte(`{"customerId":"cust_1","email":"a@example.com"}`)

	env, err := Encrypt(token, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if env[0] != EnvelopeVersion5 {
		t.Fatalf("expected version byte 5, got %d", env[0])
	}

	got, err := Decrypt(token, env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %s want %s", got, plaintext)
	}
}

func TestEnvelopeCompressesLargeRepetitiveBodies(t *testing.T) {
	token := "token"
	plaintext := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 200))

	env, err := Encrypt(token, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	headerLen := 4 + saltLen + ivLen + hashLen
	compressedFlag := env[headerLen]
	if compressedFlag != 1 {
		t.Fatal("expected highly repetitive payload to be compressed")
	}

	got, err := Decrypt(token, env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("round trip mismatch for compressed payload")
	}
}

func TestEnvelopeWrongTokenFails(t *testing.T) {
	env, err := Encrypt("right-token", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt("wrong-token", env); err == nil {
		t.Fatal("expected decryption with wrong token to fail")
	}
}

func TestEnvelopeTamperDetected(t *testing.T) {
	token := "token"
	env, err := Encrypt(token, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	env[len(env)-1] ^= 0xFF
	if _, err := Decrypt(token, env); err == nil {
		t.Fatal("expected tampered envelope to fail decryption")
	}
}

func TestEnvelopeRejectsUnsupportedVersion(t *testing.T) {
	env, err := Encrypt("token", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	env[0] = 9
	if _, err := Decrypt("token", env); err == nil {
		t.Fatal("expected unsupported version to be rejected")
	}
}

func TestTwoStageRoundTrip(t *testing.T) {
	ownerToken := "owner-token"
	requestKey := "grant-key-for-this-request"
	plaintext := []byte(`{"ssn":"000-00-0000"}`)

	sealed, err := SealTwoStage(ownerToken, requestKey, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := OpenTwoStage(ownerToken, requestKey, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %s want %s", got, plaintext)
	}
}

func TestTwoStageWrongRequestKeyFails(t *testing.T) {
	sealed, err := SealTwoStage("owner-token", "grant-key", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := OpenTwoStage("owner-token", "wrong-grant-key", sealed); err == nil {
		t.Fatal("expected wrong request key to fail")
	}
}

func TestTwoStageWrongOwnerTokenFails(t *testing.T) {
	sealed, err := SealTwoStage("owner-token", "grant-key", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := OpenTwoStage("wrong-owner-token", "grant-key", sealed); err == nil {
		t.Fatal("expected wrong owner token to fail")
	}
}

func TestFilterAppliesRootRequiredOptional(t *testing.T) {
	schema := Schema{
		Root:     []string{"customerId"},
		Required: []string{"email"},
		Optional: []string{"displayName", "preferences"},
	}
	body := map[string]any{
		"customerId":  "cust_1",
		"email":       "a@example.com",
		"displayName": "Alice",
		"preferences": map[string]any{"theme": "dark"},
		"internal":    "should never surface",
	}

	// No include list: all optional fields pass through.
	out := Apply(body, schema, Selection{})
	if _, ok := out["internal"]; ok {
		t.Error("expected unlisted field to be dropped")
	}
	if _, ok := out["displayName"]; !ok {
		t.Error("expected optional field to pass through with no include filter")
	}

	// Narrow to just displayName: required/root still present, other optional dropped.
	out = Apply(body, schema, Selection{Include: []string{"displayName"}})
	if _, ok := out["preferences"]; ok {
		t.Error("expected preferences excluded when not in include list")
	}
	if _, ok := out["customerId"]; !ok {
		t.Error("expected root field to survive include filtering")
	}
	if _, ok := out["email"]; !ok {
		t.Error("expected required field to survive include filtering")
	}

	// Exclude wins even over root.
	out = Apply(body, schema, Selection{Exclude: []string{"customerId"}})
	if _, ok := out["customerId"]; ok {
		t.Error("expected explicit exclude to override root field default")
	}
}

func TestParseSelectionTrimsAndSkipsEmpty(t *testing.T) {
	sel := ParseSelection(" a, b ,,c", "d", "")
	if len(sel.Include) != 3 || sel.Include[0] != "a" || sel.Include[2] != "c" {
		t.Errorf("unexpected include parse: %#v", sel.Include)
	}
	if len(sel.Exclude) != 1 || sel.Exclude[0] != "d" {
		t.Errorf("unexpected exclude parse: %#v", sel.Exclude)
	}
	if sel.Tags != nil {
		t.Errorf("expected nil tags for empty input, got %#v", sel.Tags)
	}
}
