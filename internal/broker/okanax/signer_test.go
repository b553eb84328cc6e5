package okanax

import (
	"encoding/base64"
	"testing"
)

func TestSigner_Headers(t *testing.T) {
	s := NewSigner("ak", "sk", "pp")

	h := s.headersAt("2026-01-02T03:04:05.000Z", "POST", pathPlaceOrder, `{"sz":"1"}`)

	if h["OX-ACCESS-KEY"] != "ak" || h["OX-ACCESS-PASSPHRASE"] != "pp" {
		t.Errorf("credential headers = %v", h)
	}
	if h["OX-ACCESS-TIMESTAMP"] != "2026-01-02T03:04:05.000Z" {
		t.Errorf("timestamp = %s", h["OX-ACCESS-TIMESTAMP"])
	}

	raw, err := base64.StdEncoding.DecodeString(h["OX-ACCESS-SIGN"])
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("signature length = %d, want 32 (SHA-256)", len(raw))
	}

	// Same inputs sign identically; any input change does not.
	again := s.headersAt("2026-01-02T03:04:05.000Z", "POST", pathPlaceOrder, `{"sz":"1"}`)
	if again["OX-ACCESS-SIGN"] != h["OX-ACCESS-SIGN"] {
		t.Error("signing is not deterministic")
	}
	other := s.headersAt("2026-01-02T03:04:05.000Z", "POST", pathPlaceOrder, `{"sz":"2"}`)
	if other["OX-ACCESS-SIGN"] == h["OX-ACCESS-SIGN"] {
		t.Error("different bodies must sign differently")
	}
}

func TestSigner_LoginArg(t *testing.T) {
	s := NewSigner("ak", "sk", "pp")

	arg := s.loginArgAt(1700000000)

	if arg.APIKey != "ak" || arg.Passphrase != "pp" {
		t.Errorf("login arg = %+v", arg)
	}
	if arg.Timestamp != "1700000000" {
		t.Errorf("timestamp = %s", arg.Timestamp)
	}
	if arg.Sign != s.sign("1700000000GET/users/self/verify") {
		t.Error("login signature payload mismatch")
	}
}
