package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Conversly/whatsapp-concierge/internal/core"
)

// SignatureHeader carries the HMAC of the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature checks a Meta webhook signature of the form sha256=<hex>.
func VerifySignature(signature string, payload []byte, appSecret string) error {
	if !strings.HasPrefix(signature, "sha256=") {
		return fmt.Errorf("%w: invalid signature format: missing sha256= prefix", core.ErrAuth)
	}

	expectedSig := signature[7:]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(payload)
	computedSig := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(expectedSig)), []byte(computedSig)) {
		return fmt.Errorf("%w: signature verification failed", core.ErrAuth)
	}

	return nil
}

// Sign returns the header value Meta would send for payload.
func Sign(payload []byte, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyHandshake accepts a subscription request carrying the configured token.
func VerifyHandshake(mode, token, verifyToken string) error {
	if mode != "subscribe" || verifyToken == "" {
		return fmt.Errorf("%w: unexpected hub.mode %q", core.ErrAuth, mode)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(verifyToken)) != 1 {
		return fmt.Errorf("%w: verify token mismatch", core.ErrAuth)
	}
	return nil
}
