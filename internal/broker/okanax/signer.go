package okanax

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer handles Okanax V2 authentication. Unlike hex-based schemes the
// signature is base64 and a passphrase header accompanies every request.
type Signer struct {
	apiKey     []byte
	secretKey  []byte
	passphrase []byte
}

func NewSigner(apiKey, secretKey, passphrase string) *Signer {
	return &Signer{
		apiKey:     []byte(apiKey),
		secretKey:  []byte(secretKey),
		passphrase: []byte(passphrase),
	}
}

// Wipe clears the credentials from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for _, b := range [][]byte{s.apiKey, s.secretKey, s.passphrase} {
		for i := range b {
			b[i] = 0
		}
	}
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Headers creates signed REST headers. Timestamp is ISO8601 UTC millis.
func (s *Signer) Headers(method, path, body string) map[string]string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	return s.headersAt(ts, method, path, body)
}

func (s *Signer) headersAt(timestamp, method, path, body string) map[string]string {
	return map[string]string{
		"OX-ACCESS-KEY":        string(s.apiKey),
		"OX-ACCESS-SIGN":       s.sign(timestamp + method + path + body),
		"OX-ACCESS-TIMESTAMP":  timestamp,
		"OX-ACCESS-PASSPHRASE": string(s.passphrase),
		"Content-Type":         "application/json",
	}
}

// LoginArg builds the WebSocket authentication argument. The venue signs
// epoch seconds over a fixed verification path for the login op.
func (s *Signer) LoginArg() wsLoginArg {
	return s.loginArgAt(time.Now().Unix())
}

func (s *Signer) loginArgAt(epochSec int64) wsLoginArg {
	ts := strconv.FormatInt(epochSec, 10)
	return wsLoginArg{
		APIKey:     string(s.apiKey),
		Passphrase: string(s.passphrase),
		Timestamp:  ts,
		Sign:       s.sign(ts + "GET" + "/users/self/verify"),
	}
}
