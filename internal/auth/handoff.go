package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw hand-off body.
const SignatureHeader = "X-Odyssey-Signature"

const defaultHandoffMaxAge = 5 * time.Minute

var (
	// ErrSignatureInvalid indicates a missing or forged hand-off signature.
	ErrSignatureInvalid = errors.New("auth: invalid hand-off signature")
	// ErrHandoffExpired indicates a signed hand-off outside the accepted window.
	ErrHandoffExpired = errors.New("auth: hand-off expired")
)

// Verifier checks hand-offs signed by the authentication backend with the
// shared secret. A verifier without a secret rejects everything.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewVerifier builds a Verifier. A non-positive maxAge uses five minutes.
func NewVerifier(secret string, maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = defaultHandoffMaxAge
	}
	return &Verifier{secret: []byte(secret), maxAge: maxAge, now: time.Now}
}

// Sign returns the signature expected for payload.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against payload.
func (v *Verifier) Verify(payload []byte, signature string) error {
	if len(v.secret) == 0 || signature == "" {
		return ErrSignatureInvalid
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// CheckIssued rejects hand-offs issued more than maxAge away from now.
func (v *Verifier) CheckIssued(issuedAt int64) error {
	age := v.now().Sub(time.Unix(issuedAt, 0))
	if age > v.maxAge || age < -v.maxAge {
		return ErrHandoffExpired
	}
	return nil
}
