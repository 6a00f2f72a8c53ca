package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for the Credential Store contract (spec.md §4.A).
var (
	ErrUsernameTaken  = errors.New("username taken")
	ErrBadCredentials = errors.New("bad credentials")
	ErrUserNotFound   = errors.New("user not found")
	ErrCodeInvalid    = errors.New("registration code invalid")
	ErrTokenNotFound  = errors.New("refresh token not found")
)

// dummyHash is compared against on a username-not-found lookup so that
// VerifyPassword takes the same shape of time whether the user exists
// with a wrong password or doesn't exist at all (spec.md §4.A "Failure
// semantics: all verify operations are constant-time").
const dummyHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeOdmVZ1JGsHdj8iwEKZPfPwhI1ppW8Owq"

// CredentialStore implements spec.md §4.A over PostgreSQL, following the
// teacher's direct-pgx query style (no generated query layer is present
// in the retrieved reference, so queries are hand-written here the way
// internal/storage/db_context.go wraps transactions in the teacher).
type CredentialStore struct {
	pool   *pgxpool.Pool
	hasher PasswordHasher
}

// PasswordHasher is the same contract as the teacher's auth.PasswordHasher,
// kept here so the store doesn't import the auth package (avoids an
// import cycle: auth.AuthService depends on storage, not vice versa).
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

func NewCredentialStore(pool *pgxpool.Pool, hasher PasswordHasher) *CredentialStore {
	return &CredentialStore{pool: pool, hasher: hasher}
}

// CreateUser implements spec.md §4.A create_user.
func (s *CredentialStore) CreateUser(ctx context.Context, username, password string, role Role, totpSecret string, tags []string) (int64, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role, totp_secret, tags)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id
	`, username, hash, string(role), totpSecret, tags).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByUsername fetches a user by username, regardless of password.
func (s *CredentialStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(ctx, `SELECT id, username, password_hash, role, COALESCE(totp_secret, ''), totp_required, is_active, tags, created_at FROM users WHERE username = $1`, username)
}

// GetUserByID fetches a user by primary key.
func (s *CredentialStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(ctx, `SELECT id, username, password_hash, role, COALESCE(totp_secret, ''), totp_required, is_active, tags, created_at FROM users WHERE id = $1`, id)
}

func (s *CredentialStore) scanUser(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	var role string
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &role, &u.TOTPSecret, &u.TOTPRequired, &u.IsActive, &u.Tags, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}

// VerifyPassword implements spec.md §4.A verify_password with a
// constant-time not-found vs. bad-password path.
func (s *CredentialStore) VerifyPassword(ctx context.Context, username, password string) (*User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		// No such user: compare against a dummy hash so the branch takes
		// about as long as a real bcrypt compare would.
		_ = s.hasher.Compare(dummyHash, password)
		return nil, ErrBadCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, ErrBadCredentials
	}
	return user, nil
}

// SetTOTPSecret persists a newly generated TOTP secret for a user
// (used by registration and by recovery-via-reset-code).
func (s *CredentialStore) SetTOTPSecret(ctx context.Context, userID int64, secret string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET totp_secret = $1 WHERE id = $2`, secret, userID)
	return err
}

// SetTOTPRequired resolves spec.md §9(a): per-user optional 2FA for
// teachers.
func (s *CredentialStore) SetTOTPRequired(ctx context.Context, userID int64, required bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET totp_required = $1 WHERE id = $2`, required, userID)
	return err
}

// SetPassword overwrites a user's password hash directly, for admin
// password resets outside the reset-code flow (cmd/control).
func (s *CredentialStore) SetPassword(ctx context.Context, userID int64, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, userID)
	return err
}

// ConsumeRegistrationCode implements spec.md §4.A
// consume_registration_code atomically: the row is locked, validity is
// re-checked under the lock, and used_count is incremented in the same
// transaction so concurrent registrations against a max_uses=1 code
// cannot both succeed.
func (s *CredentialStore) ConsumeRegistrationCode(ctx context.Context, code string) (*RegistrationCode, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var rc RegistrationCode
	var role string
	err = tx.QueryRow(ctx, `
		SELECT code, target_role, max_uses, used_count, assigned_tags, expires_at, revoked
		FROM registration_codes WHERE code = $1 FOR UPDATE
	`, code).Scan(&rc.Code, &role, &rc.MaxUses, &rc.UsedCount, &rc.AssignedTags, &rc.ExpiresAt, &rc.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCodeInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup registration code: %w", err)
	}
	rc.TargetRole = Role(role)

	if !rc.Valid(time.Now()) {
		return nil, ErrCodeInvalid
	}

	if _, err := tx.Exec(ctx, `UPDATE registration_codes SET used_count = used_count + 1 WHERE code = $1`, code); err != nil {
		return nil, fmt.Errorf("consume registration code: %w", err)
	}
	rc.UsedCount++

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &rc, nil
}

// CreateRegistrationCode implements the admin-issuing side of spec.md
// §6 POST /admin/registration-code.
func (s *CredentialStore) CreateRegistrationCode(ctx context.Context, role Role, maxUses int, tags []string, ttl time.Duration) (*RegistrationCode, error) {
	code, err := GenerateSecureToken(16)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(ttl)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO registration_codes (code, target_role, max_uses, assigned_tags, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, code, string(role), maxUses, tags, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("create registration code: %w", err)
	}
	return &RegistrationCode{Code: code, TargetRole: role, MaxUses: maxUses, AssignedTags: tags, ExpiresAt: expiresAt}, nil
}

// RevokeRegistrationCode force-expires a code (supplemental operational
// surface, see SPEC_FULL.md §6).
func (s *CredentialStore) RevokeRegistrationCode(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE registration_codes SET revoked = TRUE WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("revoke registration code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeInvalid
	}
	return nil
}

// ListRegistrationCodes supports the supplemental admin listing surface.
func (s *CredentialStore) ListRegistrationCodes(ctx context.Context) ([]RegistrationCode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, target_role, max_uses, used_count, assigned_tags, expires_at, revoked
		FROM registration_codes ORDER BY expires_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list registration codes: %w", err)
	}
	defer rows.Close()

	var out []RegistrationCode
	for rows.Next() {
		var rc RegistrationCode
		var role string
		if err := rows.Scan(&rc.Code, &role, &rc.MaxUses, &rc.UsedCount, &rc.AssignedTags, &rc.ExpiresAt, &rc.Revoked); err != nil {
			return nil, fmt.Errorf("scan registration code: %w", err)
		}
		rc.TargetRole = Role(role)
		out = append(out, rc)
	}
	return out, rows.Err()
}

// CreateResetCode issues a single-use, username-bound reset code
// (spec.md §3 "ResetCode").
func (s *CredentialStore) CreateResetCode(ctx context.Context, username string, ttl time.Duration) (*ResetCode, error) {
	code, err := GenerateSecureToken(16)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(ttl)
	_, err = s.pool.Exec(ctx, `INSERT INTO reset_codes (code, username, expires_at) VALUES ($1, $2, $3)`, code, username, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("create reset code: %w", err)
	}
	return &ResetCode{Code: code, Username: username, ExpiresAt: expiresAt}, nil
}

// ConsumeResetCode validates and single-uses a reset code, returning the
// bound username.
func (s *CredentialStore) ConsumeResetCode(ctx context.Context, code string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var rc ResetCode
	err = tx.QueryRow(ctx, `SELECT code, username, expires_at, used FROM reset_codes WHERE code = $1 FOR UPDATE`, code).
		Scan(&rc.Code, &rc.Username, &rc.ExpiresAt, &rc.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCodeInvalid
	}
	if err != nil {
		return "", fmt.Errorf("lookup reset code: %w", err)
	}
	if rc.Used || time.Now().After(rc.ExpiresAt) {
		return "", ErrCodeInvalid
	}

	if _, err := tx.Exec(ctx, `UPDATE reset_codes SET used = TRUE WHERE code = $1`, code); err != nil {
		return "", fmt.Errorf("consume reset code: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return rc.Username, nil
}

// --- Refresh tokens ---

// hashToken uses SHA-256 for deterministic lookup, exactly like the
// teacher's internal/auth.hashToken.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// GenerateSecureToken creates a random URL-safe string, the same helper
// shape as the teacher's internal/auth.GenerateSecureToken.
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// IssueRefresh implements spec.md §4.A issue_refresh, starting a new
// rotation family.
func (s *CredentialStore) IssueRefresh(ctx context.Context, userID int64, ttl time.Duration) (rawToken string, rec *RefreshToken, err error) {
	rawToken, err = GenerateSecureToken(48)
	if err != nil {
		return "", nil, err
	}
	rec = &RefreshToken{
		ID:        uuid.New(),
		TokenHash: hashToken(rawToken),
		UserID:    userID,
		FamilyID:  uuid.New(),
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, token_hash, user_id, family_id, parent_token_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.TokenHash, rec.UserID, rec.FamilyID, rec.ParentTokenID, rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("issue refresh: %w", err)
	}
	return rawToken, rec, nil
}

// ExchangeRefresh implements spec.md §4.A exchange_refresh, rotating the
// token and detecting reuse within the same family (grounded on the
// teacher's session_service.go RefreshSession).
func (s *CredentialStore) ExchangeRefresh(ctx context.Context, rawToken string, ttl time.Duration) (newRaw string, rec *RefreshToken, err error) {
	hashed := hashToken(rawToken)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing RefreshToken
	err = tx.QueryRow(ctx, `
		SELECT id, token_hash, user_id, family_id, parent_token_id, issued_at, expires_at, revoked, revoked_at
		FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE
	`, hashed).Scan(&existing.ID, &existing.TokenHash, &existing.UserID, &existing.FamilyID, &existing.ParentTokenID,
		&existing.IssuedAt, &existing.ExpiresAt, &existing.Revoked, &existing.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrTokenNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if existing.Revoked {
		// Reuse of a revoked token: nuke the whole family.
		_, _ = tx.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = now() WHERE family_id = $1 AND revoked = FALSE`, existing.FamilyID)
		_ = tx.Commit(ctx)
		return "", nil, errors.New("security alert: refresh token reuse detected")
	}
	if time.Now().After(existing.ExpiresAt) {
		return "", nil, errors.New("refresh token expired")
	}

	newRaw, err = GenerateSecureToken(48)
	if err != nil {
		return "", nil, err
	}
	newRec := &RefreshToken{
		ID:            uuid.New(),
		TokenHash:     hashToken(newRaw),
		UserID:        existing.UserID,
		FamilyID:      existing.FamilyID,
		ParentTokenID: &existing.ID,
		IssuedAt:      time.Now(),
		ExpiresAt:     time.Now().Add(ttl),
	}

	if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = now() WHERE id = $1`, existing.ID); err != nil {
		return "", nil, fmt.Errorf("revoke old refresh token: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, token_hash, user_id, family_id, parent_token_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, newRec.ID, newRec.TokenHash, newRec.UserID, newRec.FamilyID, newRec.ParentTokenID, newRec.IssuedAt, newRec.ExpiresAt); err != nil {
		return "", nil, fmt.Errorf("insert rotated refresh token: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", nil, fmt.Errorf("commit: %w", err)
	}
	return newRaw, newRec, nil
}

// RevokeRefresh implements spec.md §4.A revoke_refresh. Idempotent.
func (s *CredentialStore) RevokeRefresh(ctx context.Context, rawToken string) error {
	hashed := hashToken(rawToken)
	_, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = now() WHERE token_hash = $1 AND revoked = FALSE`, hashed)
	return err
}

// LookupRefresh returns the refresh-token record without mutating it, used
// by stage-2 login to resolve the carried user before issuing an access
// token.
func (s *CredentialStore) LookupRefresh(ctx context.Context, rawToken string) (*RefreshToken, error) {
	hashed := hashToken(rawToken)
	var rec RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT id, token_hash, user_id, family_id, parent_token_id, issued_at, expires_at, revoked, revoked_at
		FROM refresh_tokens WHERE token_hash = $1
	`, hashed).Scan(&rec.ID, &rec.TokenHash, &rec.UserID, &rec.FamilyID, &rec.ParentTokenID,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked, &rec.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	return &rec, nil
}

// CleanExpiredRefreshTokens is used by cmd/worker's janitor loop.
func (s *CredentialStore) CleanExpiredRefreshTokens(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CleanExpiredCodes is used by cmd/worker's janitor loop.
func (s *CredentialStore) CleanExpiredCodes(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM registration_codes WHERE expires_at < now() OR used_count >= max_uses`)
	if err != nil {
		return 0, err
	}
	n := tag.RowsAffected()

	tag2, err := s.pool.Exec(ctx, `DELETE FROM reset_codes WHERE expires_at < now() OR used = TRUE`)
	if err != nil {
		return n, err
	}
	return n + tag2.RowsAffected(), nil
}

// isUniqueViolation detects Postgres error code 23505 via the typed
// pgconn.PgError rather than matching on the error string, which would
// silently stop working if the constraint were ever renamed.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
