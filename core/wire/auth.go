package wire

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/ed25519"

	"github.com/kabili207/lorance/core/address"
)

// SignatureSize is the trailer length appended to a signed HELLO payload.
const SignatureSize = ed25519.SignatureSize

// Sentinel errors for the optional HELLO-authentication extension (spec §9
// Open Question on origin authentication, resolved in SPEC_FULL as an
// opt-in extension rather than a mandatory field — see DESIGN.md).
var (
	ErrSignatureTooShort     = errors.New("hello payload shorter than signature trailer")
	ErrInvalidPublicKeyPoint = errors.New("hello signer public key is not a canonical curve point")
	ErrBadSignature          = errors.New("hello signature verification failed")
)

// SignHello appends an Ed25519 signature trailer to an already-encoded
// HELLO payload (the output of EncodeHello), generalizing the teacher's
// core/crypto.SignAdvert from signing an ADVERT's pubkey+timestamp+appdata
// to signing a HELLO's claimed sender address plus its wire bytes, so a
// captured signature cannot be replayed under a different sender address.
func SignHello(priv ed25519.PrivateKey, senderAddress address.Address, payload []byte) []byte {
	msg := signedMessage(senderAddress, payload)
	sig := ed25519.Sign(priv, msg)

	out := make([]byte, len(payload)+SignatureSize)
	copy(out, payload)
	copy(out[len(payload):], sig)
	return out
}

// VerifyHello splits a signed HELLO payload into its base payload and
// signature trailer and verifies it against pub, returning the base payload
// (suitable for DecodeHello) on success.
//
// Unlike a bare ed25519.Verify call, pub is first decoded as a curve point
// via filippo.io/edwards25519, so a key that is not a point on the curve is
// reported as ErrInvalidPublicKeyPoint rather than ErrBadSignature. This
// decoding accepts non-canonical encodings of valid points and does not
// reject small-order points.
func VerifyHello(pub ed25519.PublicKey, senderAddress address.Address, signed []byte) ([]byte, error) {
	if len(signed) < SignatureSize {
		return nil, ErrSignatureTooShort
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKeyPoint, err)
	}

	split := len(signed) - SignatureSize
	payload, sig := signed[:split], signed[split:]

	msg := signedMessage(senderAddress, payload)
	if !ed25519.Verify(pub, msg, sig) {
		return nil, ErrBadSignature
	}
	return payload, nil
}

// signedMessage builds senderAddress(2 LE) || payload, the message actually
// signed/verified.
func signedMessage(senderAddress address.Address, payload []byte) []byte {
	msg := make([]byte, 2+len(payload))
	msg[0] = byte(senderAddress)
	msg[1] = byte(senderAddress >> 8)
	copy(msg[2:], payload)
	return msg
}
