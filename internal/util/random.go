package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomAlphaNumeric generates a random alphanumeric string of the
// specified length. Not for cryptographic use.
func GenerateRandomAlphaNumeric(length int) string {
	if length <= 0 {
		return ""
	}
	const chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.IntN(len(chars))])
	}
	return builder.String()
}

// GenerateActivationCode generates a printable activation code payload for
// QR batches.
func GenerateActivationCode() string {
	return "RX-" + GenerateRandomAlphaNumeric(16)
}
