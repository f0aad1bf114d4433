package crypto

import "encoding/base64"

// b64urlEncoding is unpadded base64url, matching the wire format used by
// every envelope and header in the substrate.
var b64urlEncoding = base64.RawURLEncoding

// B64URLEncode encodes b as unpadded base64url.
func B64URLEncode(b []byte) string {
	return b64urlEncoding.EncodeToString(b)
}

// B64URLDecode decodes unpadded base64url text.
func B64URLDecode(s string) ([]byte, error) {
	return b64urlEncoding.DecodeString(s)
}
