// Package blob implements the binary file pipeline (§6, spec.md): the
// client-side compressed, authenticated-encryption envelope streamed
// through a storage backend, with a legacy-format fallback decoder.
package blob

import (
	"context"
	"fmt"

	"github.com/strixun/edgecore/internal/apperr"
)

// EncryptionFormat identifies which decode pipeline a stored object's
// bytes require.
type EncryptionFormat string

const (
	FormatBinaryV5   EncryptionFormat = "binary-v5"
	FormatBinaryV4   EncryptionFormat = "binary-v4"
	FormatLegacyJSON EncryptionFormat = "legacy-json"
)

// Metadata is the custom metadata stored alongside a blob's bytes.
type Metadata struct {
	EncryptionFormat    EncryptionFormat `json:"encryptionFormat"`
	SHA256              string           `json:"sha256"` // hex digest of the plaintext
	OriginalContentType string           `json:"originalContentType"`
	CustomerID          string           `json:"customerId"`
}

// Backend is the storage side of a StoredObject: an interface analogous to
// the original's R2 binding. Bytes are stored exactly as received from the
// pipeline (the raw envelope for v5/v4, or the raw legacy JSON document) —
// the backend never sees plaintext.
type Backend interface {
	Put(ctx context.Context, r2Key string, data []byte, meta Metadata) error
	Get(ctx context.Context, r2Key string) ([]byte, Metadata, bool, error)
	Delete(ctx context.Context, r2Key string) error
}

// versionByte reads the format-discriminating first byte of an upload. The
// server inspects it before attempting any cryptographic operation, per
// §6: "== 5 -> v5 pipeline; == 4 -> legacy binary; otherwise reject unless
// MIME indicates legacy JSON-encrypted."
func versionByte(raw []byte) (byte, error) {
	if len(raw) == 0 {
		return 0, apperr.New(apperr.KindValidation, "empty upload body")
	}
	return raw[0], nil
}

func rejectUnknownFormat(v byte, mimeType string) error {
	if mimeType == legacyJSONContentType {
		return nil
	}
	return apperr.New(apperr.KindValidation, "unrecognised binary upload format").
		WithDetail(fmt.Sprintf("first byte 0x%02x, content-type %q", v, mimeType))
}

const legacyJSONContentType = "application/vnd.edgecore.legacy-encrypted+json"
