package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/powerca/backoffice/utils"
)

var (
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	ErrSecretMissing     = errors.New("RAZORPAY_KEY_SECRET is not set")
)

// ExpectedSignature is the hex HMAC-SHA256 of "orderID|paymentID" keyed with the gateway secret.
func ExpectedSignature(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(orderID, paymentID, signature, secret string) bool {
	if signature == "" {
		return false
	}
	expected := ExpectedSignature(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Verifier applies the checkout signature policy: test payments skip the check only
// outside production, and a missing secret always fails closed.
type Verifier struct {
	secret     string
	production bool
}

func NewVerifier(secret string, production bool) *Verifier {
	return &Verifier{secret: secret, production: production}
}

func (v *Verifier) BypassAllowed(isTestPayment bool) bool {
	return isTestPayment && !v.production
}

// Check returns bypassed=true when the test-mode bypass applied.
func (v *Verifier) Check(orderID, paymentID, signature string, isTestPayment bool) (bool, error) {
	if v.BypassAllowed(isTestPayment) {
		return true, nil
	}
	if v.secret == "" {
		return false, utils.WrapError(utils.KindConfiguration, "payment gateway is not configured", ErrSecretMissing)
	}
	if !VerifySignature(orderID, paymentID, signature, v.secret) {
		return false, utils.WrapError(utils.KindPayment, "payment verification failed", ErrSignatureMismatch)
	}
	return false, nil
}
