package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

// keygen prints random values for the two shared secrets config.Load
// requires: JWT_SECRET (signs access tokens) and INTERNAL_TOKEN (gates
// the /internal course-catalog surface). Adapted from the teacher's
// RSA keypair generator since the Auth Gateway here signs with a
// symmetric HMAC secret, not RSA.
func main() {
	jwtSecret, err := randomSecret(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate secret: %v\n", err)
		os.Exit(1)
	}
	internalToken, err := randomSecret(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("--- COPY BELOW TO .env.local ---")
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Printf("INTERNAL_TOKEN=%s\n", internalToken)
	fmt.Println("--------------------------------")
}

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
