// Package otpcode generates numeric one-time codes.
package otpcode

import (
	"crypto/rand"
	"fmt"
)

// Bytes at or above this value are discarded so that b%10 is uniform.
const rejectAbove = 250

// Generate returns length decimal digits drawn from crypto/rand.
// Leading zeros are kept; the result is always exactly length characters.
func Generate(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("otpcode: invalid length %d", length)
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length+length/2+1)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("otpcode: read entropy: %w", err)
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
