// Package auth validates the bearer tokens presented to the activity API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed or badly signed
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer does not match
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrMissingSubject is returned when the token carries no user id
	ErrMissingSubject = errors.New("token has no subject")
)

const defaultLeeway = 30 * time.Second

// Claims are the claims carried by an activity API token
type Claims struct {
	jwt.RegisteredClaims
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	ApplicantID string   `json:"applicant_id,omitempty"`
}

// ParsedClaims represents validated claims
type ParsedClaims struct {
	Subject     string
	Name        string
	Roles       []string
	ApplicantID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// HMACValidator validates HS256/384/512 tokens signed with a shared secret
type HMACValidator struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewHMACValidator creates a validator; an empty issuer skips the issuer check
func NewHMACValidator(secret, issuer string) *HMACValidator {
	return &HMACValidator{
		secret: []byte(secret),
		issuer: issuer,
		leeway: defaultLeeway,
	}
}

// ValidateToken verifies the signature, expiry and issuer of tokenString
func (v *HMACValidator) ValidateToken(_ context.Context, tokenString string) (*ParsedClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	parsed := &ParsedClaims{
		Subject:     claims.Subject,
		Name:        claims.Name,
		Roles:       claims.Roles,
		ApplicantID: claims.ApplicantID,
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}
	return parsed, nil
}

// Issue signs an HS256 token for subject, valid for ttl
func (v *HMACValidator) Issue(subject, name string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  name,
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
