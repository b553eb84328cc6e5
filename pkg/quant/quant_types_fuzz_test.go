package quant

import (
	"testing"
)

// FuzzToPriceMicrosStr tests fixed-point string parsing with fuzzing.
func FuzzToPriceMicrosStr(f *testing.F) {
	f.Add("0")
	f.Add("1.23")
	f.Add("-1.23")
	f.Add("0.000001")
	f.Add("9999999.999999")
	f.Add("null")
	f.Add("..")

	f.Fuzz(func(t *testing.T, s string) {
		// Malformed venue strings must never panic, only yield a number.
		_ = ToPriceMicrosStr(s)
	})
}

// FuzzToQtySatsStr tests quantity parsing with fuzzing.
func FuzzToQtySatsStr(f *testing.F) {
	f.Add("0")
	f.Add("1.0")
	f.Add("0.00000001")
	f.Add("21000000.0") // Max BTC supply

	f.Fuzz(func(t *testing.T, s string) {
		_ = ToQtySatsStr(s)
	})
}

// FuzzParseTimeStamp tests timestamp parsing with fuzzing.
func FuzzParseTimeStamp(f *testing.F) {
	f.Add("0")
	f.Add("1704067200000") // 2024-01-01 00:00:00 UTC in ms
	f.Add("-1")
	f.Add("9223372036854775807")

	f.Fuzz(func(t *testing.T, s string) {
		// Should handle invalid input gracefully (return error, not panic)
		_, _ = ParseTimeStamp(s)
	})
}
