package cipher

import (
	"encoding/json"

	"github.com/strixun/edgecore/internal/apperr"
)

// TwoStageEnvelope wraps a response body re-disclosed to a custodian (e.g.
// a support admin acting on a DataRequest grant) under two nested keys: an
// outer key scoped to the request grant, and the data owner's own token as
// the inner key. Neither party alone can open it — the custodian needs the
// grant, and the grant alone (without the owner's token baked in at seal
// time) cannot be replayed against other owners' data.
type TwoStageEnvelope struct {
	Outer []byte `json:"outer"`
}

// SealTwoStage encrypts plaintext first under ownerToken (the inner layer,
// binding the ciphertext to the data owner whose record is being read),
// then re-encrypts that result under requestKey (the outer layer, scoping
// disclosure to a single approved DataRequest).
func SealTwoStage(ownerToken, requestKey string, plaintext []byte) ([]byte, error) {
	inner, err := Encrypt(ownerToken, plaintext)
	if err != nil {
		return nil, err
	}
	outer, err := Encrypt(requestKey, inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(TwoStageEnvelope{Outer: outer})
}

// OpenTwoStage reverses SealTwoStage. The caller must present both the
// grant's requestKey and the data owner's original token; either one wrong
// surfaces as apperr.KindDecryptionFailed with no indication of which.
func OpenTwoStage(ownerToken, requestKey string, sealed []byte) ([]byte, error) {
	var env TwoStageEnvelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindDecryptionFailed, "malformed two-stage envelope", err)
	}

	inner, err := Decrypt(requestKey, env.Outer)
	if err != nil {
		return nil, err
	}
	return Decrypt(ownerToken, inner)
}
