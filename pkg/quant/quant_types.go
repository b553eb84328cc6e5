package quant

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PriceMicros represents price multiplied by 1,000,000 (10^6).
// E.g., 1.23 USD = 1,230,000 PriceMicros.
type PriceMicros int64

// QtySats represents quantity multiplied by 100,000,000 (10^8).
// E.g., 1.0 BTC = 100,000,000 QtySats.
type QtySats int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

const (
	PriceScale = 1000000
	QtyScale   = 100000000
)

// ToPriceMicros converts a float64 (from external API) to PriceMicros.
// Only used at the boundary. Internal logic uses PriceMicros directly.
func ToPriceMicros(f float64) PriceMicros {
	return PriceMicros(math.Round(f * PriceScale))
}

// ToQtySats converts a float64 to QtySats.
func ToQtySats(f float64) QtySats {
	return QtySats(math.Round(f * QtyScale))
}

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

func (q QtySats) String() string {
	return fmt.Sprintf("%.8f", float64(q)/QtyScale)
}

// Abs returns the magnitude of a signed quantity.
func (q QtySats) Abs() QtySats {
	if q < 0 {
		return -q
	}
	return q
}

// ParseTimeStamp converts a string (ms) to TimeStamp (micros).
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TimeStamp(ms * 1000), nil
}

// ToPriceMicrosStr converts a numeric string to PriceMicros without using float64.
// Rule #1: No Float. Using fixed-point string parsing.
func ToPriceMicrosStr(s string) PriceMicros {
	return PriceMicros(parseFixedPoint(s, 6))
}

// ToQtySatsStr converts a numeric string to QtySats without using float64.
func ToQtySatsStr(s string) QtySats {
	return QtySats(parseFixedPoint(s, 8))
}

// parseFixedPoint parses a numeric string into an int64 with the given precision.
// E.g., parseFixedPoint("1.23", 6) -> 1,230,000.
func parseFixedPoint(s string, precision int) int64 {
	if s == "" || s == "null" {
		return 0
	}

	intStr, fracStr := s, ""
	if dot := strings.IndexByte(s, '.'); dot != -1 {
		intStr, fracStr = s[:dot], s[dot+1:]
	}

	intPart, _ := strconv.ParseInt(intStr, 10, 64)
	for i := 0; i < precision; i++ {
		intPart *= 10
	}

	if fracStr == "" {
		return intPart
	}

	if len(fracStr) > precision {
		fracStr = fracStr[:precision]
	}
	fracPart, _ := strconv.ParseInt(fracStr, 10, 64)

	for i := len(fracStr); i < precision; i++ {
		fracPart *= 10
	}

	if strings.HasPrefix(intStr, "-") {
		return intPart - fracPart
	}
	return intPart + fracPart
}
