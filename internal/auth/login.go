package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/novaline-edu/enrollgate/internal/audit"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// LoginStage1Result implements spec.md §6 "POST /login/v1 {username,
// password} → {refresh_token, requires_2fa}".
type LoginStage1Result struct {
	RefreshToken string
	RequiresTOTP bool
	UserID       int64
	Role         storage.Role
}

// Login implements spec.md §4.B stage 1.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginStage1Result, error) {
	user, err := s.store.VerifyPassword(ctx, username, password)
	if err != nil {
		s.audit.Log(ctx, 0, audit.EventLoginFailed, map[string]any{"username": username})
		return nil, ErrBadCredentials
	}
	if !user.IsActive {
		return nil, ErrInactive
	}

	raw, _, err := s.store.IssueRefresh(ctx, user.ID, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	s.audit.Log(ctx, user.ID, audit.EventLoginSuccess, map[string]any{"stage": 1})
	return &LoginStage1Result{
		RefreshToken: raw,
		RequiresTOTP: requiresTOTP(user),
		UserID:       user.ID,
		Role:         user.Role,
	}, nil
}

// LoginAdmin implements spec.md §6 "POST /login/admin — one-stage
// variant returning an access token directly."
func (s *AuthService) LoginAdmin(ctx context.Context, username, password string) (accessToken string, expiresIn int, err error) {
	user, err := s.store.VerifyPassword(ctx, username, password)
	if err != nil {
		s.audit.Log(ctx, 0, audit.EventLoginFailed, map[string]any{"username": username, "variant": "admin"})
		return "", 0, ErrBadCredentials
	}
	if user.Role != storage.RoleAdmin {
		return "", 0, ErrRoleMismatch
	}
	if !user.IsActive {
		return "", 0, ErrInactive
	}

	accessToken, err = s.tokens.GenerateAccessToken(user.ID, string(user.Role))
	if err != nil {
		return "", 0, fmt.Errorf("generate access token: %w", err)
	}
	s.audit.Log(ctx, user.ID, audit.EventLoginSuccess, map[string]any{"variant": "admin"})
	return accessToken, int(s.accessTTL.Seconds()), nil
}

// LoginStage2Result implements spec.md §6 "POST /login/v2 {refresh_token,
// totp_code} → {access_token, expires_in}". The same method backs
// register/v2 and the ordinary "refresh my access token" call, since
// the spec treats all three as "verify refresh_token (+TOTP for
// students) → mint access token."
type LoginStage2Result struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// VerifyStage2 implements spec.md §4.B stage 2. On success the refresh
// token is rotated via ExchangeRefresh (exactly the teacher's
// RefreshSession does, generalized with a TOTP gate in front of the
// rotation so a wrong code never burns the caller's current token).
func (s *AuthService) VerifyStage2(ctx context.Context, refreshToken, totpCode string) (*LoginStage2Result, error) {
	rec, err := s.store.LookupRefresh(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if rec.Revoked {
		return nil, ErrInvalidToken
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, ErrExpiredToken
	}

	user, err := s.store.GetUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactive
	}

	if requiresTOTP(user) {
		if user.TOTPSecret == "" {
			return nil, ErrMFANotEnabled
		}
		if totpCode == "" {
			return nil, ErrTOTPRequired
		}
		if !s.mfa.ValidateCode(totpCode, user.TOTPSecret) {
			s.audit.Log(ctx, user.ID, audit.EventLoginFailed, map[string]any{"stage": 2, "reason": "bad_totp"})
			return nil, ErrInvalidCode
		}
	}

	newRefresh, _, err := s.store.ExchangeRefresh(ctx, refreshToken, s.refreshTTL)
	if err != nil {
		return nil, ErrInvalidToken
	}

	accessToken, err := s.tokens.GenerateAccessToken(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	s.audit.Log(ctx, user.ID, audit.EventLoginSuccess, map[string]any{"stage": 2})
	return &LoginStage2Result{AccessToken: accessToken, RefreshToken: newRefresh, ExpiresIn: int(s.accessTTL.Seconds())}, nil
}
