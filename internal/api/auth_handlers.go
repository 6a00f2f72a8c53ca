package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/novaline-edu/enrollgate/internal/api/helpers"
	customMiddleware "github.com/novaline-edu/enrollgate/internal/api/middleware"
	"github.com/novaline-edu/enrollgate/internal/apierr"
	"github.com/novaline-edu/enrollgate/internal/auth"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// LoginV1Request backs POST /login/v1 (spec.md §6).
type LoginV1Request struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginV1Response struct {
	RefreshToken string `json:"refresh_token"`
	RequiresTOTP bool   `json:"requires_2fa"`
}

func (s *Server) LoginV1(w http.ResponseWriter, r *http.Request) {
	var req LoginV1Request
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	result, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		helpers.RespondAPIError(w, classifyAuthErr(err))
		return
	}

	helpers.RespondJSON(w, http.StatusOK, LoginV1Response{
		RefreshToken: result.RefreshToken,
		RequiresTOTP: result.RequiresTOTP,
	})
}

// LoginV2Request backs POST /login/v2: exchanges a stage-1 refresh
// token (+ TOTP for students) for an access token. The same call also
// serves as the ordinary "refresh my access token" request; each
// successful call rotates the refresh token (see LoginV2Response).
type LoginV2Request struct {
	RefreshToken string `json:"refresh_token"`
	TOTPCode     string `json:"totp_code,omitempty"`
}

// LoginV2Response carries the rotated refresh token alongside the
// minted access token: VerifyStage2 rotates the caller's refresh token
// on every successful exchange (reuse detection, spec.md §4.B), so the
// caller must swap its stored token for this one.
type LoginV2Response struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (s *Server) LoginV2(w http.ResponseWriter, r *http.Request) {
	var req LoginV2Request
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	result, err := s.auth.VerifyStage2(r.Context(), req.RefreshToken, req.TOTPCode)
	if err != nil {
		helpers.RespondAPIError(w, classifyAuthErr(err))
		return
	}

	helpers.RespondJSON(w, http.StatusOK, LoginV2Response{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
	})
}

// LoginAdminRequest backs POST /login/admin, the one-stage admin
// variant (spec.md §6).
type LoginAdminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	var req LoginAdminRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	accessToken, expiresIn, err := s.auth.LoginAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		helpers.RespondAPIError(w, classifyAuthErr(err))
		return
	}

	helpers.RespondJSON(w, http.StatusOK, LoginV2Response{AccessToken: accessToken, ExpiresIn: expiresIn})
}

// RegisterV1Request backs POST /register/v1 (spec.md §6).
type RegisterV1Request struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	Role             string `json:"role"`
	RegistrationCode string `json:"registration_code"`
}

type RegisterV1Response struct {
	RefreshToken string `json:"refresh_token"`
	TOTPSecret   string `json:"totp_secret,omitempty"`
	TOTPURI      string `json:"totp_uri,omitempty"`
}

func (s *Server) RegisterV1(w http.ResponseWriter, r *http.Request) {
	var req RegisterV1Request
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	result, err := s.auth.Register(r.Context(), req.Username, req.Password, storage.Role(req.Role), req.RegistrationCode)
	if err != nil {
		helpers.RespondAPIError(w, classifyAuthErr(err))
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, RegisterV1Response{
		RefreshToken: result.RefreshToken,
		TOTPSecret:   result.TOTPSecret,
		TOTPURI:      result.TOTPURI,
	})
}

// RegisterV2 shares login/v2's semantics per spec.md §6: the same
// refresh-token-to-access-token exchange, used right after
// register/v1 to mint the first access token.
func (s *Server) RegisterV2(w http.ResponseWriter, r *http.Request) {
	s.LoginV2(w, r)
}

// LogoutRequest backs POST /logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}
	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.Logger.Warn("logout failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me backs GET /me (spec.md §6).
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, apierr.KindTokenInvalid, "missing authentication context")
		return
	}

	user, err := s.auth.Me(r.Context(), userID)
	if err != nil {
		helpers.RespondAPIError(w, classifyAuthErr(err))
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"tags":     user.Tags,
	})
}

// AdminIssueCodeRequest backs POST /admin/registration-code (spec.md §6).
type AdminIssueCodeRequest struct {
	Role    string   `json:"role"`
	MaxUses int      `json:"max_uses"`
	Tags    []string `json:"tags,omitempty"`
	TTL     string   `json:"ttl"` // Go duration string, e.g. "72h"
}

func (s *Server) AdminIssueRegistrationCode(w http.ResponseWriter, r *http.Request) {
	actorID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, apierr.KindTokenInvalid, "missing authentication context")
		return
	}

	var req AdminIssueCodeRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}
	ttl, err := time.ParseDuration(req.TTL)
	if err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "ttl must be a duration string, e.g. \"72h\"")
		return
	}

	rc, err := s.auth.IssueRegistrationCode(r.Context(), actorID, storage.Role(req.Role), req.MaxUses, req.Tags, ttl)
	if err != nil {
		helpers.RespondAPIError(w, classifyAuthErr(err))
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, map[string]any{
		"code":       rc.Code,
		"expires_at": rc.ExpiresAt,
	})
}

// AdminListRegistrationCodes backs the supplemental GET
// /admin/registration-codes listing surface.
func (s *Server) AdminListRegistrationCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.auth.ListRegistrationCodes(r.Context())
	if err != nil {
		helpers.RespondAPIError(w, apierr.Wrap(apierr.KindStorageUnavailable, "failed to list registration codes", err))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, codes)
}

// AdminRevokeRegistrationCode backs the supplemental POST
// /admin/registration-code/{code}/revoke surface.
func (s *Server) AdminRevokeRegistrationCode(w http.ResponseWriter, r *http.Request) {
	actorID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, apierr.KindTokenInvalid, "missing authentication context")
		return
	}
	code := chi.URLParam(r, "code")
	if err := s.auth.RevokeRegistrationCode(r.Context(), actorID, code); err != nil {
		helpers.RespondAPIError(w, classifyAuthErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminIssueResetCodeRequest backs the supplemental POST
// /admin/reset-code surface (SPEC_FULL.md, grounded on spec.md §3
// "ResetCode").
type AdminIssueResetCodeRequest struct {
	Username string `json:"username"`
	TTL      string `json:"ttl"`
}

func (s *Server) AdminIssueResetCode(w http.ResponseWriter, r *http.Request) {
	actorID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		helpers.RespondError(w, apierr.KindTokenInvalid, "missing authentication context")
		return
	}
	var req AdminIssueResetCodeRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}
	ttl, err := time.ParseDuration(req.TTL)
	if err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "ttl must be a duration string, e.g. \"1h\"")
		return
	}

	rc, err := s.auth.IssueResetCode(r.Context(), actorID, req.Username, ttl)
	if err != nil {
		helpers.RespondAPIError(w, apierr.Wrap(apierr.KindStorageUnavailable, "failed to issue reset code", err))
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, map[string]any{"code": rc.Code, "expires_at": rc.ExpiresAt})
}

// AccountTOTPResetRequest backs the supplemental POST
// /account/totp-reset surface, consuming a reset code to mint a fresh
// TOTP secret.
type AccountTOTPResetRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (s *Server) AccountTOTPReset(w http.ResponseWriter, r *http.Request) {
	var req AccountTOTPResetRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, apierr.KindIntegrityViolation, "malformed request body")
		return
	}

	result, err := s.auth.ConsumeResetCode(r.Context(), req.Code, req.Password)
	if err != nil {
		helpers.RespondAPIError(w, classifyAuthErr(err))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{
		"totp_secret": result.TOTPSecret,
		"totp_uri":    result.TOTPURI,
	})
}

// classifyAuthErr maps the Auth Gateway's sentinel errors onto the
// shared apierr taxonomy (spec.md §7), since auth.AuthService speaks in
// its own package-level errors rather than *apierr.Error directly.
func classifyAuthErr(err error) *apierr.Error {
	switch {
	case errors.Is(err, storage.ErrBadCredentials):
		return apierr.Wrap(apierr.KindBadCredentials, "invalid username or password", err)
	case errors.Is(err, storage.ErrUsernameTaken):
		return apierr.Wrap(apierr.KindUsernameTaken, "username already taken", err)
	case errors.Is(err, storage.ErrCodeInvalid):
		return apierr.Wrap(apierr.KindCodeInvalid, "registration or reset code is invalid or expired", err)
	case errors.Is(err, auth.ErrInactive):
		return apierr.Wrap(apierr.KindInactive, "account is inactive", err)
	case errors.Is(err, auth.ErrRoleMismatch):
		return apierr.Wrap(apierr.KindUnauthorized, "role not authorized for this action", err)
	case errors.Is(err, auth.ErrTOTPRequired):
		return apierr.Wrap(apierr.KindBadTOTP, "totp code required", err)
	case errors.Is(err, auth.ErrMFANotEnabled):
		return apierr.Wrap(apierr.KindBadTOTP, "totp not enabled for this account", err)
	case errors.Is(err, auth.ErrInvalidCode):
		return apierr.Wrap(apierr.KindBadTOTP, "invalid totp code", err)
	case errors.Is(err, auth.ErrInvalidToken):
		return apierr.Wrap(apierr.KindTokenInvalid, "invalid or revoked refresh token", err)
	case errors.Is(err, auth.ErrExpiredToken):
		return apierr.Wrap(apierr.KindTokenExpired, "refresh token expired", err)
	default:
		return apierr.Wrap(apierr.KindStorageUnavailable, "authentication service unavailable", err)
	}
}
