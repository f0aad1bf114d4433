// Package integrity implements the service-to-service HMAC request/response
// signing layer: inert for JWT-bearing user calls, which use response
// encryption instead (pkg/cipher).
package integrity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/strixun/edgecore/internal/crypto"
)

// ReplayWindow is the tolerated clock skew on request timestamps.
const ReplayWindow = 5 * time.Minute

// RequestIntegrityHeader carries the base64url request signature.
const RequestIntegrityHeader = "X-Strixun-Request-Integrity"

// RequestTimestampHeader carries the unix-seconds signing timestamp.
const RequestTimestampHeader = "X-Strixun-Request-Timestamp"

// ResponseIntegrityHeader carries the base64url response signature.
const ResponseIntegrityHeader = "X-Strixun-Response-Integrity"

// CustomerIDHeader carries the customer ID bound into the request signature.
const CustomerIDHeader = "X-Customer-ID"

// NoCustomer is the sentinel used when no customer ID applies to a request.
const NoCustomer = "∅"

// Signer signs and verifies service-to-service messages with a shared
// HMAC keyphrase.
type Signer struct {
	keyphrase []byte
}

// NewSigner creates a Signer from the shared NETWORK_INTEGRITY_KEYPHRASE.
func NewSigner(keyphrase string) *Signer {
	return &Signer{keyphrase: []byte(keyphrase)}
}

// SignRequest computes the request signature and timestamp for an outbound
// service-to-service call. customerID may be empty (encoded as NoCustomer).
func (s *Signer) SignRequest(method, pathWithQuery string, body []byte, customerID string) (sig string, timestamp string) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := requestMessage(method, pathWithQuery, body, ts, customerID)
	mac := crypto.HMACSHA256(s.keyphrase, msg)
	return crypto.B64URLEncode(mac), ts
}

// VerifyRequest checks a received request signature, including the replay
// window on the timestamp. Returns an error describing the failure; callers
// map any error to apperr.KindIntegrityFailed without distinguishing cause
// to outside observers.
func (s *Signer) VerifyRequest(method, pathWithQuery string, body []byte, timestamp, customerID, sig string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
	}
	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > ReplayWindow {
		return fmt.Errorf("timestamp %q outside replay window of %s", timestamp, ReplayWindow)
	}

	expected := crypto.HMACSHA256(s.keyphrase, requestMessage(method, pathWithQuery, body, timestamp, customerID))
	got, err := crypto.B64URLDecode(sig)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if !crypto.CTEqual(expected, got) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// SignResponse computes the response signature for a service-to-service
// response body.
func (s *Signer) SignResponse(status int, body []byte) string {
	mac := crypto.HMACSHA256(s.keyphrase, responseMessage(status, body))
	return crypto.B64URLEncode(mac)
}

// VerifyResponse checks a received response signature.
func (s *Signer) VerifyResponse(status int, body []byte, sig string) error {
	expected := crypto.HMACSHA256(s.keyphrase, responseMessage(status, body))
	got, err := crypto.B64URLDecode(sig)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if !crypto.CTEqual(expected, got) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func requestMessage(method, pathWithQuery string, body []byte, timestamp, customerID string) []byte {
	if customerID == "" {
		customerID = NoCustomer
	}
	msg := method + "\n" + pathWithQuery + "\n" + string(body) + "\n" + timestamp + "\n" + customerID
	return []byte(msg)
}

func responseMessage(status int, body []byte) []byte {
	msg := strconv.Itoa(status) + "\n" + string(body)
	return []byte(msg)
}
