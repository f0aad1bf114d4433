package blob

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/crypto"
	"github.com/strixun/edgecore/pkg/cipher"
)

// Pipeline ties a Backend to the encrypt/decrypt logic for binary uploads
// and downloads. Unlike pkg/cipher's JSON response envelope, the bearer
// token here always belongs to the uploading/downloading customer — there
// is no service-to-service binary path.
type Pipeline struct {
	backend Backend
}

// NewPipeline creates a Pipeline backed by backend.
func NewPipeline(backend Backend) *Pipeline {
	return &Pipeline{backend: backend}
}

// legacyJSONEnvelope is the pre-binary wire shape some older clients still
// send: a JSON document carrying a base64 IV and ciphertext, encrypted
// with the legacy (salt-less) key derivation.
type legacyJSONEnvelope struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// legacyKey derives the v4/legacy-json key directly from the token's
// SHA-256 digest — no PBKDF2, no salt. This predates the v5 envelope's key
// derivation and exists only to decode objects uploaded before the
// migration to v5; new uploads always use v5.
func legacyKey(token string) []byte {
	h := crypto.SHA256([]byte(token))
	return h[:]
}

// Upload ingests raw upload bytes for customerID, authenticated as token,
// and returns the backend key the object was stored under. The first byte
// of raw selects the pipeline; anything else is rejected unless mimeType
// names the legacy JSON content type.
func (p *Pipeline) Upload(ctx context.Context, token, customerID, mimeType string, raw []byte) (string, Metadata, error) {
	v, err := versionByte(raw)
	if err != nil {
		return "", Metadata{}, err
	}

	r2Key := uuid.NewString()

	switch v {
	case cipher.EnvelopeVersion5:
		plaintext, err := cipher.Decrypt(token, raw)
		if err != nil {
			return "", Metadata{}, err
		}
		sum := crypto.SHA256(plaintext)
		meta := Metadata{
			EncryptionFormat:    FormatBinaryV5,
			SHA256:              hex.EncodeToString(sum[:]),
			OriginalContentType: mimeType,
			CustomerID:          customerID,
		}
		// Store the raw envelope as received — the backend never holds
		// plaintext; decryption above exists only to compute the digest.
		if err := p.backend.Put(ctx, r2Key, raw, meta); err != nil {
			return "", Metadata{}, fmt.Errorf("storing v5 blob: %w", err)
		}
		return r2Key, meta, nil

	case cipher.EnvelopeVersion4:
		plaintext, err := decryptLegacyBinary(token, raw)
		if err != nil {
			return "", Metadata{}, err
		}
		sum := crypto.SHA256(plaintext)
		meta := Metadata{
			EncryptionFormat:    FormatBinaryV4,
			SHA256:              hex.EncodeToString(sum[:]),
			OriginalContentType: mimeType,
			CustomerID:          customerID,
		}
		if err := p.backend.Put(ctx, r2Key, raw, meta); err != nil {
			return "", Metadata{}, fmt.Errorf("storing v4 blob: %w", err)
		}
		return r2Key, meta, nil

	default:
		if err := rejectUnknownFormat(v, mimeType); err != nil {
			return "", Metadata{}, err
		}
		plaintext, err := decryptLegacyJSON(token, raw)
		if err != nil {
			return "", Metadata{}, err
		}
		sum := crypto.SHA256(plaintext)
		meta := Metadata{
			EncryptionFormat:    FormatLegacyJSON,
			SHA256:              hex.EncodeToString(sum[:]),
			OriginalContentType: mimeType,
			CustomerID:          customerID,
		}
		if err := p.backend.Put(ctx, r2Key, raw, meta); err != nil {
			return "", Metadata{}, fmt.Errorf("storing legacy-json blob: %w", err)
		}
		return r2Key, meta, nil
	}
}

// Download loads r2Key and decrypts it as token, selecting the decoder
// from the stored encryptionFormat rather than re-sniffing the bytes.
func (p *Pipeline) Download(ctx context.Context, token, r2Key string) ([]byte, Metadata, error) {
	raw, meta, ok, err := p.backend.Get(ctx, r2Key)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("loading blob %q: %w", r2Key, err)
	}
	if !ok {
		return nil, Metadata{}, apperr.New(apperr.KindNotFound, "object not found")
	}

	switch meta.EncryptionFormat {
	case FormatBinaryV5:
		plaintext, err := cipher.Decrypt(token, raw)
		if err != nil {
			return nil, Metadata{}, err
		}
		return plaintext, meta, nil
	case FormatBinaryV4:
		plaintext, err := decryptLegacyBinary(token, raw)
		if err != nil {
			return nil, Metadata{}, err
		}
		return plaintext, meta, nil
	case FormatLegacyJSON:
		plaintext, err := decryptLegacyJSON(token, raw)
		if err != nil {
			return nil, Metadata{}, err
		}
		return plaintext, meta, nil
	default:
		return nil, Metadata{}, apperr.New(apperr.KindDecryptionFailed, "unknown stored encryption format").
			WithDetail(string(meta.EncryptionFormat))
	}
}

// decryptLegacyBinary decodes the v4 format: version(1B)=4 | iv(12B) |
// ciphertext||tag, keyed directly off SHA-256(token) with no PBKDF2 pass.
func decryptLegacyBinary(token string, raw []byte) ([]byte, error) {
	const headerLen = 1 + crypto.NonceSize
	if len(raw) < headerLen+1 {
		return nil, apperr.New(apperr.KindDecryptionFailed, "truncated legacy binary envelope")
	}
	iv := raw[1:headerLen]
	ciphertext := raw[headerLen:]
	plaintext, err := crypto.AESGCMDecrypt(legacyKey(token), iv, ciphertext, nil)
	if err != nil {
		return nil, apperr.New(apperr.KindDecryptionFailed, "legacy binary decryption failed")
	}
	return plaintext, nil
}

func decryptLegacyJSON(token string, raw []byte) ([]byte, error) {
	var env legacyJSONEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.New(apperr.KindDecryptionFailed, "malformed legacy json envelope")
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, apperr.New(apperr.KindDecryptionFailed, "malformed legacy json iv")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, apperr.New(apperr.KindDecryptionFailed, "malformed legacy json ciphertext")
	}
	plaintext, err := crypto.AESGCMDecrypt(legacyKey(token), iv, ciphertext, nil)
	if err != nil {
		return nil, apperr.New(apperr.KindDecryptionFailed, "legacy json decryption failed")
	}
	return plaintext, nil
}
