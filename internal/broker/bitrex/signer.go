package bitrex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Signer handles Bitrex V1 API authentication.
// Keys are stored as []byte so they can be wiped from memory on shutdown.
type Signer struct {
	accessKey []byte
	secretKey []byte
}

// NewSigner creates a new signer.
func NewSigner(accessKey, secretKey string) *Signer {
	return &Signer{
		accessKey: []byte(accessKey),
		secretKey: []byte(secretKey),
	}
}

// Wipe clears the keys from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	wipeSlice(s.accessKey)
	wipeSlice(s.secretKey)
}

func wipeSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Headers creates the signed request headers for the current timestamp.
func (s *Signer) Headers(method, path, query, body string) map[string]string {
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())
	return s.headersAt(ts, method, path, query, body)
}

// headersAt builds headers for a fixed timestamp. Split out so signing is
// testable against known vectors.
func (s *Signer) headersAt(timestamp, method, path, query, body string) map[string]string {
	// Pre-signature string: timestamp + method + path + query + body.
	payload := timestamp + method + path + query + body

	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"BX-ACCESS-KEY":       string(s.accessKey),
		"BX-ACCESS-SIGN":      signature,
		"BX-ACCESS-TIMESTAMP": timestamp,
		"Content-Type":        "application/json",
	}
}
