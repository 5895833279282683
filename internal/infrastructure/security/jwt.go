package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/echos/users-api/internal/core/domain"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig is the immutable signing configuration, built once at startup.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// tokenClaims is the wire form: {userId, role, name, userAgent?, iat, exp, jti}.
type tokenClaims struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	UserAgent string `json:"userAgent,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 tokens. Access and refresh tokens use distinct
// secrets so one can never be accepted in place of the other.
type JWTIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewJWTIssuer validates cfg and returns an issuer. Both secrets are
// required and must differ.
func NewJWTIssuer(cfg TokenConfig) (*JWTIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("jwt: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("jwt: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &JWTIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *JWTIssuer) WithClock(now func() time.Time) *JWTIssuer {
	clone := *i
	clone.now = now
	return &clone
}

func (i *JWTIssuer) IssueAccess(claims domain.Claims) (string, error) {
	return i.sign(claims, i.accessSecret, i.accessTTL)
}

func (i *JWTIssuer) IssueRefresh(claims domain.Claims) (string, error) {
	return i.sign(claims, i.refreshSecret, i.refreshTTL)
}

func (i *JWTIssuer) VerifyAccess(token string) (*domain.Claims, error) {
	return i.verify(token, i.accessSecret)
}

func (i *JWTIssuer) VerifyRefresh(token string) (*domain.Claims, error) {
	return i.verify(token, i.refreshSecret)
}

func (i *JWTIssuer) sign(claims domain.Claims, secret []byte, ttl time.Duration) (string, error) {
	now := i.now()
	tc := tokenClaims{
		UserID:    claims.UserID,
		Role:      claims.Role,
		Name:      claims.Name,
		UserAgent: claims.UserAgent,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// verify checks signature and expiry. Failures are reported as
// domain.ErrMalformedToken, domain.ErrExpiredToken or domain.ErrInvalidToken.
func (i *JWTIssuer) verify(token string, secret []byte) (*domain.Claims, error) {
	var tc tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &tc, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid || tc.UserID == "" {
		return nil, domain.ErrInvalidToken
	}
	return &domain.Claims{
		UserID:    tc.UserID,
		Role:      tc.Role,
		Name:      tc.Name,
		UserAgent: tc.UserAgent,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", domain.ErrExpiredToken, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
}
