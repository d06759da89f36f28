// Package auth implements token verification and issuance: a pure,
// I/O-free component that validates bearer tokens and mints new ones,
// carrying display name, email, and an anonymous flag alongside the user
// id.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sessionhub/internal/domain"
	dErrors "sessionhub/pkg/domainerrors"
)

// Claims is the JWT claim set this service issues and verifies.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Anonymous   bool   `json:"anonymous"`
	jwt.RegisteredClaims
}

// Verifier is the token verifier. It holds only configuration: no I/O,
// no shared mutable state, so it is safe to call concurrently from every
// connection's protocol state machine.
type Verifier struct {
	signingKey []byte
	issuer     string
	lifetime   time.Duration
}

// Config configures a Verifier. Only HMAC-SHA256 signing is supported.
type Config struct {
	Secret   string
	Issuer   string
	Lifetime time.Duration // default 24h when zero
}

// NewVerifier builds a Verifier from Config.
func NewVerifier(cfg Config) *Verifier {
	lifetime := cfg.Lifetime
	if lifetime == 0 {
		lifetime = 24 * time.Hour
	}
	return &Verifier{
		signingKey: []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		lifetime:   lifetime,
	}
}

// Issue mints a token carrying the given identity claims with the
// verifier's configured lifetime.
func (v *Verifier) Issue(userID domain.UserID, displayName, email string, anonymous bool) (string, error) {
	return v.issueWithExpiry(userID, displayName, email, anonymous, time.Now().Add(v.lifetime))
}

func (v *Verifier) issueWithExpiry(userID domain.UserID, displayName, email string, anonymous bool, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:      string(userID),
		DisplayName: displayName,
		Email:       email,
		Anonymous:   anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(v.signingKey)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "sign token", err)
	}
	return signed, nil
}

// Verify validates signature and expiry and returns the embedded Principal.
// Any failure — bad signature, wrong algorithm, malformed claims, or an
// expired token — is reported as a single CodeUnauthorized error; callers
// never need to distinguish the cause.
func (v *Verifier) Verify(tokenString string) (*domain.Principal, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return nil, err
	}

	return &domain.Principal{
		UserID:      domain.UserID(claims.UserID),
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
		Anonymous:   claims.Anonymous,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

func (v *Verifier) parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Refresh verifies the token, then mints a fresh one carrying the same
// identity but a new expiry. An already-expired token is always rejected;
// there is no sliding grace period.
func (v *Verifier) Refresh(tokenString string) (string, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return "", err
	}
	return v.issueWithExpiry(
		domain.UserID(claims.UserID), claims.DisplayName, claims.Email, claims.Anonymous,
		time.Now().Add(v.lifetime),
	)
}
