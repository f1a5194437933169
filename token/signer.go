// Package token creates and verifies the four signed, time-bounded token
// kinds used by the identity engine: access, refresh, email-verification
// and password-reset. Each kind carries its own HS256 secret and lifetime;
// a kind marker baked into the claims rejects cross-purpose use even when
// two kinds share a secret.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind identifies the purpose a token was issued for.
type Kind uint8

const (
	// KindAccess is the short-lived bearer credential for API calls.
	KindAccess Kind = iota
	// KindRefresh is the long-lived credential exchanged for new access
	// tokens. Refresh tokens are additionally persisted server-side for
	// revocation; the signer only handles the cryptographic half.
	KindRefresh
	// KindEmailVerification is the single-use email confirmation token.
	KindEmailVerification
	// KindPasswordReset is the single-use password recovery token.
	KindPasswordReset

	kindCount
)

var kindNames = [kindCount]string{
	KindAccess:            "access",
	KindRefresh:           "refresh",
	KindEmailVerification: "email_verification",
	KindPasswordReset:     "password_reset",
}

func (k Kind) String() string {
	if k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

var (
	// ErrExpired marks a token whose expiry has passed. Terminal: the
	// caller must re-authenticate or request a new token.
	ErrExpired = errors.New("token expired")
	// ErrMalformed marks a token that fails decoding or signature checks.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongKind marks a well-formed token presented for a purpose it
	// was not issued for.
	ErrWrongKind = errors.New("token kind mismatch")
	// ErrUnknownKind marks a Kind value outside the defined set.
	ErrUnknownKind = errors.New("unknown token kind")
)

// Config holds per-kind secrets and lifetimes. Every secret must be set
// and every TTL positive; a misconfigured signer is a construction-time
// failure, never a per-call one.
type Config struct {
	Issuer string
	Leeway time.Duration

	AccessSecret []byte
	AccessTTL    time.Duration

	RefreshSecret []byte
	RefreshTTL    time.Duration

	VerifySecret []byte
	VerifyTTL    time.Duration

	ResetSecret []byte
	ResetTTL    time.Duration
}

// DefaultTTLs applies the stock lifetimes (15m access, 7d refresh,
// 24h email verification, 1h password reset) to any unset TTL field.
func (c Config) DefaultTTLs() Config {
	if c.AccessTTL == 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.VerifyTTL == 0 {
		c.VerifyTTL = 24 * time.Hour
	}
	if c.ResetTTL == 0 {
		c.ResetTTL = time.Hour
	}
	return c
}

// Signer issues and verifies tokens. It is stateless and safe for
// concurrent use.
type Signer struct {
	config Config
}

type signedClaims struct {
	Kind string `json:"knd"`
	jwt.RegisteredClaims
}

// NewSigner validates the configuration and returns a ready Signer.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	for k := KindAccess; k < kindCount; k++ {
		secret, ttl, err := cfg.kindParams(k)
		if err != nil {
			return nil, err
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("missing secret for %s tokens", k)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("invalid TTL for %s tokens", k)
		}
	}
	return &Signer{config: cfg}, nil
}

func (c Config) kindParams(kind Kind) ([]byte, time.Duration, error) {
	switch kind {
	case KindAccess:
		return c.AccessSecret, c.AccessTTL, nil
	case KindRefresh:
		return c.RefreshSecret, c.RefreshTTL, nil
	case KindEmailVerification:
		return c.VerifySecret, c.VerifyTTL, nil
	case KindPasswordReset:
		return c.ResetSecret, c.ResetTTL, nil
	default:
		return nil, 0, ErrUnknownKind
	}
}

// Lifetime returns the configured TTL for a kind. Unknown kinds report 0.
func (s *Signer) Lifetime(kind Kind) time.Duration {
	_, ttl, err := s.config.kindParams(kind)
	if err != nil {
		return 0
	}
	return ttl
}

// Issue signs a token of the given kind for the subject. The embedded jti
// makes every issued token unique, so two logins in the same instant still
// produce distinct refresh-token strings.
func (s *Signer) Issue(kind Kind, subject string) (string, error) {
	secret, ttl, err := s.config.kindParams(kind)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := signedClaims{
		Kind: kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks signature, expiry and kind marker, and returns the subject.
// Errors are ErrExpired, ErrMalformed or ErrWrongKind; a token signed for a
// different kind fails either the signature check (distinct secrets) or the
// marker check (shared secret) — cross-use never validates.
func (s *Signer) Verify(tokenStr string, kind Kind) (string, error) {
	claims, err := s.parse(tokenStr, kind)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Subject extracts the subject of a token whose signature and kind are
// valid, ignoring expiry. Used by logout, where an expired refresh token
// should still revoke its stored entry.
func (s *Signer) Subject(tokenStr string, kind Kind) (string, error) {
	claims, err := s.parse(tokenStr, kind)
	if err != nil && !errors.Is(err, ErrExpired) {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Signer) parse(tokenStr string, kind Kind) (*signedClaims, error) {
	secret, _, err := s.config.kindParams(kind)
	if err != nil {
		return nil, err
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	claims := &signedClaims{}
	parser := jwt.NewParser(options...)
	_, err = parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// Expiry is only reportable once the kind marker checks out,
			// otherwise cross-use of an expired token would leak its kind.
			if claims.Kind != kind.String() {
				return nil, ErrWrongKind
			}
			return claims, ErrExpired
		}
		return nil, ErrMalformed
	}
	if claims.Kind != kind.String() {
		return nil, ErrWrongKind
	}

	return claims, nil
}
