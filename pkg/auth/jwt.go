package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSecret = errors.New("signing secret is not configured")

// TokenService issues and validates HS256 admin tokens.
type TokenService struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenService(secret, issuer string) *TokenService {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
		now:    time.Now,
	}
}

// Enabled reports whether a secret is configured.
func (s *TokenService) Enabled() bool {
	return len(s.secret) > 0
}

// GenerateToken signs a token for subject valid for ttl.
func (s *TokenService) GenerateToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken checks signature, expiry and issuer and returns the claims.
func (s *TokenService) ValidateToken(token string) (*jwt.RegisteredClaims, error) {
	if !s.Enabled() {
		return nil, ErrNoSecret
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
