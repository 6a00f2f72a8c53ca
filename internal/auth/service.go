// Package auth implements the Auth Gateway (spec.md §4.B): the
// two-stage login/register protocols, access-token issuance, and
// access-token validation used by every downstream component. It is
// agnostic of HTTP transport (chi) or the concrete CredentialStore
// implementation, the same transport-agnostic split the teacher's
// AuthService follows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/novaline-edu/enrollgate/internal/audit"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

var (
	ErrBadCredentials = storage.ErrBadCredentials
	ErrCodeInvalid    = storage.ErrCodeInvalid
	ErrInactive       = errors.New("account is inactive")
	ErrRoleMismatch   = errors.New("registration code does not authorize this role")
	ErrTOTPRequired   = errors.New("totp code required")
)

// AuthService orchestrates the Credential Store and the token provider
// to implement spec.md §4.B end to end.
type AuthService struct {
	store                *storage.CredentialStore
	tokens               TokenProvider
	mfa                  *MFAService
	audit                audit.Service
	accessTTL            time.Duration
	refreshTTL           time.Duration
	teacherTOTPByDefault bool
}

func NewAuthService(store *storage.CredentialStore, tokens TokenProvider, mfa *MFAService, auditSvc audit.Service, accessTTL, refreshTTL time.Duration, teacherTOTPByDefault bool) *AuthService {
	return &AuthService{
		store:                store,
		tokens:               tokens,
		mfa:                  mfa,
		audit:                auditSvc,
		accessTTL:            accessTTL,
		refreshTTL:           refreshTTL,
		teacherTOTPByDefault: teacherTOTPByDefault,
	}
}

// requiresTOTP implements spec.md §4.B: "if role = student, TOTP is
// mandatory; if role ∈ {teacher, admin}, TOTP is skipped unless
// configured" — resolved per spec.md §9 Open Question (a) as a
// per-user configurable flag for teachers.
func requiresTOTP(user *storage.User) bool {
	return user.Role == storage.RoleStudent || user.TOTPRequired
}

// teacherEnrollsInTOTP reports whether a newly registering teacher
// should be enrolled in TOTP by default, per the TEACHER_TOTP_DEFAULT
// config knob.
func (s *AuthService) teacherEnrollsInTOTP() bool {
	return s.teacherTOTPByDefault
}

// VerifyAccess validates a bearer access token for downstream
// components (Rate Limiter's user-scope key, Admission Funnel's
// identity check).
func (s *AuthService) VerifyAccess(tokenString string) (*Claims, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != "access" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Logout implements spec.md §4.B "logout revokes the refresh token;
// subsequent refreshes fail." Idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.store.RevokeRefresh(ctx, refreshToken)
}

// SetupMFA lets a teacher opt in to 2FA (spec.md §9(a)): generates a
// fresh secret that only takes effect once confirmed via ActivateMFA.
func (s *AuthService) SetupMFA(ctx context.Context, userID int64) (*otpSecretResponse, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == storage.RoleAdmin {
		return nil, errors.New("admins never carry totp")
	}

	key, img, err := s.mfa.GenerateSecret(user.Username)
	if err != nil {
		return nil, err
	}
	return &otpSecretResponse{Secret: key.Secret(), URI: key.URL(), QRCodePNG: img}, nil
}

type otpSecretResponse struct {
	Secret    string
	URI       string
	QRCodePNG []byte
}

// ActivateMFA confirms a SetupMFA challenge and flips the user's
// requires-totp gate on.
func (s *AuthService) ActivateMFA(ctx context.Context, userID int64, secret, code string) error {
	if !s.mfa.ValidateCode(code, secret) {
		return ErrInvalidCode
	}
	if err := s.store.SetTOTPSecret(ctx, userID, secret); err != nil {
		return fmt.Errorf("persist totp secret: %w", err)
	}
	return s.store.SetTOTPRequired(ctx, userID, true)
}

// IssueRegistrationCode implements spec.md §6 "POST
// /admin/registration-code {role, max_uses, tags, ttl} → {code,
// expires_at}".
func (s *AuthService) IssueRegistrationCode(ctx context.Context, actorID int64, role storage.Role, maxUses int, tags []string, ttl time.Duration) (*storage.RegistrationCode, error) {
	rc, err := s.store.CreateRegistrationCode(ctx, role, maxUses, tags, ttl)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, actorID, audit.EventCodeIssued, map[string]any{"role": string(role), "max_uses": maxUses})
	return rc, nil
}

// ListRegistrationCodes supports the supplemental admin listing surface
// (SPEC_FULL.md §6).
func (s *AuthService) ListRegistrationCodes(ctx context.Context) ([]storage.RegistrationCode, error) {
	return s.store.ListRegistrationCodes(ctx)
}

// RevokeRegistrationCode supports the supplemental "kill a leaked code"
// operational surface (SPEC_FULL.md §6).
func (s *AuthService) RevokeRegistrationCode(ctx context.Context, actorID int64, code string) error {
	if err := s.store.RevokeRegistrationCode(ctx, code); err != nil {
		return err
	}
	s.audit.Log(ctx, actorID, audit.EventCodeRevoked, map[string]any{"code": code})
	return nil
}

// Me implements spec.md §6 "GET /me (authenticated) → {user_id,
// username, role, tags?}".
func (s *AuthService) Me(ctx context.Context, userID int64) (*storage.User, error) {
	return s.store.GetUserByID(ctx, userID)
}
