package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/novaline-edu/enrollgate/internal/storage"
)

// PasswordHasher defines the contract for password operations. Aliased
// to storage.PasswordHasher so the store and the service share one
// interface without an import cycle between them.
type PasswordHasher = storage.PasswordHasher

// BcryptHasher implements PasswordHasher using the bcrypt algorithm.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new hasher at cost 12.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: 12}
}

// Hash returns the bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// Compare checks if the provided password matches the hash. Returns nil
// if match, error otherwise.
func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
