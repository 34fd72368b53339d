package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer   = "notenest"
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Claims represents the JWT claims carried by identity tokens. The plan is
// deliberately absent: it is re-read from the directory on every request.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the verified content of a token.
type Identity struct {
	AccountID string
	Email     string
	ExpiresAt time.Time
}

// TokenCodec issues and verifies HS256 identity tokens with a process-wide secret.
// Tokens cannot be revoked; the TTL bounds exposure of a leaked token.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures TokenCodec.
type CodecOption func(*TokenCodec)

// WithIssuer overrides the iss claim written and expected.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec returns a codec signing with secret.
func NewTokenCodec(secret string, opts ...CodecOption) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	c := &TokenCodec{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for the account that expires ttl from now.
func (c *TokenCodec) Issue(accountID, email string, ttl time.Duration) (string, time.Time, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", time.Time{}, errors.New("auth: account id is required")
	}
	if email == "" {
		return "", time.Time{}, errors.New("auth: email is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("auth: ttl must be greater than zero")
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and expiry of token and returns its identity.
// Errors are ErrTokenMalformed, ErrTokenSignatureInvalid or ErrTokenExpired.
func (c *TokenCodec) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrTokenMalformed
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithStrictDecoding(),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) && signatureSegmentOnly(parser, token) {
			return Identity{}, ErrTokenSignatureInvalid
		}
		return Identity{}, classify(err)
	}
	if !parsed.Valid {
		return Identity{}, ErrTokenSignatureInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Email == "" {
		return Identity{}, ErrTokenMalformed
	}
	return Identity{
		AccountID: claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// signatureSegmentOnly reports whether token's header and claims decode, so a
// malformed error can only come from the signature segment.
func signatureSegmentOnly(p *jwt.Parser, token string) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	_, _, err := p.ParseUnverified(token, &Claims{})
	return err == nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}
