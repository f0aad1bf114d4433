package integrity

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/strixun/edgecore/internal/crypto"
)

func TestSignAndVerifyRequestRoundTrip(t *testing.T) {
	s := NewSigner("shared-keyphrase")
	body := []byte(`{"foo":"bar"}`)

	sig, ts := s.SignRequest("POST", "/customer/sync", body, "cust_123")

	if err := s.VerifyRequest("POST", "/customer/sync", body, ts, "cust_123", sig); err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}
}

func TestVerifyRequestDetectsBodyTamper(t *testing.T) {
	s := NewSigner("shared-keyphrase")
	body := []byte(`{"foo":"bar"}`)
	sig, ts := s.SignRequest("POST", "/customer/sync", body, "cust_123")

	tampered := []byte(`{"foo":"baz"}`)
	if err := s.VerifyRequest("POST", "/customer/sync", tampered, ts, "cust_123", sig); err == nil {
		t.Fatal("expected verification to fail for tampered body")
	}
}

func TestVerifyRequestDetectsWrongKeyphrase(t *testing.T) {
	s1 := NewSigner("keyphrase-one")
	s2 := NewSigner("keyphrase-two")
	body := []byte(`{}`)

	sig, ts := s1.SignRequest("GET", "/path", body, "")
	if err := s2.VerifyRequest("GET", "/path", body, ts, "", sig); err == nil {
		t.Fatal("expected verification to fail across different keyphrases")
	}
}

// signAt signs a request message as of an explicit timestamp, bypassing
// SignRequest's use of time.Now(), so replay-window edges can be tested.
func signAt(s *Signer, method, path string, body []byte, ts, customerID string) string {
	msg := requestMessage(method, path, body, ts, customerID)
	mac := crypto.HMACSHA256(s.keyphrase, msg)
	return crypto.B64URLEncode(mac)
}

func unixTimestamp(d time.Duration) string {
	return strconv.FormatInt(time.Now().Add(d).Unix(), 10)
}

func TestVerifyRequestRejectsStaleTimestamp(t *testing.T) {
	s := NewSigner("shared-keyphrase")
	body := []byte(`{}`)
	staleTs := unixTimestamp(-10 * time.Minute)

	sig := signAt(s, "GET", "/path", body, staleTs, "")
	if err := s.VerifyRequest("GET", "/path", body, staleTs, "", sig); err == nil {
		t.Fatal("expected verification to reject timestamp outside replay window")
	}
}

func TestVerifyRequestAcceptsTimestampWithinWindow(t *testing.T) {
	s := NewSigner("shared-keyphrase")
	body := []byte(`{}`)
	recentTs := unixTimestamp(-4 * time.Minute)

	sig := signAt(s, "GET", "/path", body, recentTs, "")
	if err := s.VerifyRequest("GET", "/path", body, recentTs, "", sig); err != nil {
		t.Fatalf("expected timestamp within replay window to be accepted: %v", err)
	}
}

func TestSignAndVerifyResponseRoundTrip(t *testing.T) {
	s := NewSigner("shared-keyphrase")
	body := []byte(`{"result":"ok"}`)

	sig := s.SignResponse(200, body)
	if err := s.VerifyResponse(200, body, sig); err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}
}

func TestIsServiceCallRecognition(t *testing.T) {
	cases := []struct {
		name  string
		setup func(r *http.Request)
		isSvc bool
	}{
		{"integrity header", func(r *http.Request) { r.Header.Set(RequestIntegrityHeader, "x") }, true},
		{"explicit service flag", func(r *http.Request) { r.Header.Set(ServiceRequestHeader, "true") }, true},
		{"service key", func(r *http.Request) { r.Header.Set(ServiceKeyHeader, "k") }, true},
		{"non-jwt bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer opaque-token") }, true},
		{"jwt bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer a.b.c") }, false},
		{"no headers", func(r *http.Request) {}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(r)
			if got := IsServiceCall(r); got != tc.isSvc {
				t.Errorf("got %v want %v", got, tc.isSvc)
			}
		})
	}
}
