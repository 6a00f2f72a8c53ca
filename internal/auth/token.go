package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenProvider defines the contract for generating and validating the
// Auth Gateway's access tokens (spec.md §4.B: "issues a signed access
// token with TTL T_access carrying {user_id, role}").
type TokenProvider interface {
	GenerateAccessToken(userID int64, role string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims defines the custom JWT claims carried by an access token.
type Claims struct {
	UserID int64  `json:"sub"`
	Role   string `json:"role,omitempty"`
	Scope  string `json:"scope"` // always "access"; reserved for future token kinds
	jwt.RegisteredClaims
}

// JWTProvider implements TokenProvider using HMAC-SHA256 (HS256) over a
// process-global symmetric secret — the spec requires a symmetric
// secret (spec.md §9 "the secret is process-global configuration"),
// which is why this departs from the teacher's RSA/JWKS scheme: there
// is no public key to publish, so GetJWKS and key-rotation support
// (kid header) are dropped rather than faked.
type JWTProvider struct {
	secret        []byte
	tokenDuration time.Duration
	issuer        string
}

// NewJWTProvider creates a new token provider over a symmetric secret.
func NewJWTProvider(secret string, tokenDuration time.Duration) *JWTProvider {
	return &JWTProvider{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
		issuer:        "enrollgate",
	}
}

// GenerateAccessToken creates a signed JWT for the user.
func (p *JWTProvider) GenerateAccessToken(userID int64, role string) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		Scope:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-1 * time.Minute)), // fix clock skew
			NotBefore: jwt.NewNumericDate(time.Now().Add(-1 * time.Minute)),
			Issuer:    p.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies the JWT.
func (p *JWTProvider) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
