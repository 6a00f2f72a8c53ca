package auth

import (
	"context"
	"fmt"

	"github.com/novaline-edu/enrollgate/internal/audit"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// RegisterResult implements spec.md §6 "POST /register/v1 {username,
// password, role, registration_code} → {refresh_token, totp_secret?,
// totp_uri?}".
type RegisterResult struct {
	RefreshToken string
	UserID       int64
	TOTPSecret   string
	TOTPURI      string
}

// Register implements spec.md §4.B registration stage 1: consumes the
// registration code atomically, generates a mandatory TOTP secret for
// students (optional for teachers), and issues a refresh token.
func (s *AuthService) Register(ctx context.Context, username, password string, role storage.Role, registrationCode string) (*RegisterResult, error) {
	rc, err := s.store.ConsumeRegistrationCode(ctx, registrationCode)
	if err != nil {
		return nil, ErrCodeInvalid
	}
	if rc.TargetRole != role {
		return nil, ErrRoleMismatch
	}

	// Students always carry TOTP; teachers only default into it when
	// TEACHER_TOTP_DEFAULT is set, per spec.md §9(a).
	enrollTOTP := role == storage.RoleStudent || (role == storage.RoleTeacher && s.teacherEnrollsInTOTP())

	var totpSecret, totpURI string
	if enrollTOTP {
		key, _, err := s.mfa.GenerateSecret(username)
		if err != nil {
			return nil, fmt.Errorf("generate totp secret: %w", err)
		}
		totpSecret, totpURI = key.Secret(), key.URL()
	}

	userID, err := s.store.CreateUser(ctx, username, password, role, totpSecret, rc.AssignedTags)
	if err != nil {
		return nil, err
	}
	if enrollTOTP {
		if err := s.store.SetTOTPRequired(ctx, userID, true); err != nil {
			return nil, fmt.Errorf("mark totp required: %w", err)
		}
	}

	raw, _, err := s.store.IssueRefresh(ctx, userID, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	s.audit.Log(ctx, userID, audit.EventRegisterSuccess, map[string]any{"role": string(role)})
	return &RegisterResult{
		RefreshToken: raw,
		UserID:       userID,
		TOTPSecret:   totpSecret,
		TOTPURI:      totpURI,
	}, nil
}
