package auth

import (
	"crypto/subtle"
)

// SecureCompareTokens performs a constant-time comparison of two token
// strings, preventing timing attacks that measure response time to
// guess a token character by character.
//
// Apply to: refresh token validation, reset-code validation, any
// cryptographic comparison against a stored secret.
func SecureCompareTokens(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// SecureCompareBytes performs a constant-time comparison of two byte
// slices. Use this for HMAC signatures or other binary comparisons.
func SecureCompareBytes(provided, expected []byte) bool {
	return subtle.ConstantTimeCompare(provided, expected) == 1
}
