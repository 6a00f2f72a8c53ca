package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/novaline-edu/enrollgate/internal/audit"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// IssueResetCode is the admin-facing side of spec.md §3 "ResetCode":
// a single-use, username-bound code that re-enables TOTP setup for a
// user who has lost their authenticator (e.g. a new phone).
func (s *AuthService) IssueResetCode(ctx context.Context, actorID int64, username string, ttl time.Duration) (*storage.ResetCode, error) {
	rc, err := s.store.CreateResetCode(ctx, username, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue reset code: %w", err)
	}
	s.audit.Log(ctx, actorID, audit.EventCodeIssued, map[string]any{"kind": "reset_code", "username": username})
	return rc, nil
}

// ResetTOTPResult carries the freshly generated secret back to the
// caller, mirroring the shape register/v1 returns.
type ResetTOTPResult struct {
	TOTPSecret string
	TOTPURI    string
}

// ConsumeResetCode validates the reset code against the supplied
// password (defense in depth: the code alone only proves the admin
// granted recovery, the password proves the caller is the account
// owner) and issues a fresh TOTP secret, replacing the old one.
func (s *AuthService) ConsumeResetCode(ctx context.Context, code, password string) (*ResetTOTPResult, error) {
	username, err := s.store.ConsumeResetCode(ctx, code)
	if err != nil {
		return nil, storage.ErrCodeInvalid
	}

	user, err := s.store.VerifyPassword(ctx, username, password)
	if err != nil {
		return nil, storage.ErrBadCredentials
	}

	key, _, err := s.mfa.GenerateSecret(user.Username)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	if err := s.store.SetTOTPSecret(ctx, user.ID, key.Secret()); err != nil {
		return nil, fmt.Errorf("persist totp secret: %w", err)
	}

	s.audit.Log(ctx, user.ID, audit.EventCodeIssued, map[string]any{"kind": "totp_reset_consumed"})
	return &ResetTOTPResult{TOTPSecret: key.Secret(), TOTPURI: key.URL()}, nil
}
