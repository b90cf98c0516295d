// Package token issues and verifies the signed continuation tokens that let a
// stateless request prove which challenge session it acts on.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim used when no issuer option is given.
const DefaultIssuer = "geoquest"

var (
	ErrNoSecret = errors.New("token signing secret is not configured")
	ErrMissing  = errors.New("access token required")
	ErrInvalid  = errors.New("invalid token")
	ErrExpired  = errors.New("token expired")
)

// Payload is the session reference carried by a token. CurrentRiddle is
// advisory; the stored session is authoritative.
type Payload struct {
	SessionID     string
	CurrentRiddle int
	StartTime     time.Time
}

type claims struct {
	jwt.RegisteredClaims
	SessionID     string `json:"sessionId"`
	CurrentRiddle int    `json:"currentRiddle"`
	StartTime     int64  `json:"startTime"`
}

// Service signs tokens with a process-wide HMAC secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for iat/exp and for validation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// NewService creates a token service. An empty secret is a configuration
// error and returns ErrNoSecret.
func NewService(secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	s := &Service{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the lifetime given to issued tokens.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for p that expires after the service TTL.
func (s *Service) Issue(p Payload) (string, error) {
	if p.SessionID == "" {
		return "", errors.New("issue token: session id is required")
	}
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		SessionID:     p.SessionID,
		CurrentRiddle: p.CurrentRiddle,
		StartTime:     p.StartTime.UnixMilli(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its payload.
// The signature is checked before any claim, so ErrExpired is only returned
// for tokens this service actually signed.
func (s *Service) Verify(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrMissing
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Payload{}, mapJWTError(err)
	}
	if parsed.SessionID == "" || parsed.CurrentRiddle < 1 {
		return Payload{}, ErrInvalid
	}

	return Payload{
		SessionID:     parsed.SessionID,
		CurrentRiddle: parsed.CurrentRiddle,
		StartTime:     time.UnixMilli(parsed.StartTime),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
		return ErrInvalid
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpired
	}
	return ErrInvalid
}
