// Package signpkg verifies payment completion proofs issued by the gateway.
//
// The gateway signs the pair (order reference, payment id) with a shared
// secret; the backend never talks to the gateway directly, it only checks
// that a completion callback carries a valid signature.
package signpkg

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const minSecretSize = 16

// ErrMismatch indicates that the signature does not match the signed payload.
var ErrMismatch = errors.New("signature mismatch")

// Verifier checks gateway payment-completion signatures.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for the given shared secret.
func NewVerifier(secret string) (*Verifier, error) {
	if len(secret) < minSecretSize {
		return nil, errors.New("gateway secret too short")
	}

	return &Verifier{secret: []byte(secret)}, nil
}

// Sign computes the hex encoded signature over orderRef and paymentID.
// Exposed so tests and local gateway stubs can produce valid proofs.
func (v *Verifier) Sign(orderRef, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderRef))
	mac.Write([]byte{0})
	mac.Write([]byte(paymentID))

	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature over orderRef and paymentID.
func (v *Verifier) Verify(orderRef, paymentID, signature string) error {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return ErrMismatch
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderRef))
	mac.Write([]byte{0})
	mac.Write([]byte(paymentID))

	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrMismatch
	}

	return nil
}
