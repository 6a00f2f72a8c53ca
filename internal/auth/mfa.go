package auth

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrMFANotEnabled = errors.New("mfa not enabled for user")
	ErrInvalidCode   = errors.New("invalid mfa code")
)

// MFAService handles TOTP generation and validation for the Auth
// Gateway's stage-2 login (spec.md §4.B).
type MFAService struct {
	issuer string
}

func NewMFAService(issuer string) *MFAService {
	return &MFAService{
		issuer: issuer,
	}
}

// GenerateSecret creates a new TOTP secret and returns the key and a PNG QR code.
func (s *MFAService) GenerateSecret(accountName string) (*otp.Key, []byte, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate totp key: %w", err)
	}

	// Convert to PNG for display
	var buf bytes.Buffer
	img, err := key.Image(200, 200)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create qr code: %w", err)
	}

	if err := png.Encode(&buf, img); err != nil {
		return nil, nil, fmt.Errorf("failed to encode png: %w", err)
	}

	return key, buf.Bytes(), nil
}

// ValidateCode checks if the provided code is valid for the given secret.
// We allow a small skew (1 period) for clock drift.
func (s *MFAService) ValidateCode(code string, secret string) bool {
	valid := totp.Validate(code, secret)
	return valid
}

// GenerateCode (Helper for testing/dev)
func (s *MFAService) GenerateCode(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}
