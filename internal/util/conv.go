package util

import (
	"math"
	"strconv"
)

// MustParseUint returns 0 when s is not a valid unsigned integer.
func MustParseUint(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 32)
	return uint(id)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MinorUnits converts a currency amount to its smallest unit (satang, cents).
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
