package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	claimIssuedAt  = "iat"
	claimExpiresAt = "exp"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenService signs and verifies HS256 tokens with a shared secret. Tokens
// carry whatever claims the caller supplied plus iat and exp.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs claims as given. Caller-supplied iat and exp are replaced.
func (s *TokenService) Issue(claims map[string]any) (string, error) {
	now := s.now()

	mapClaims := jwt.MapClaims{}
	for k, v := range claims {
		mapClaims[k] = v
	}
	mapClaims[claimIssuedAt] = now.Unix()
	mapClaims[claimExpiresAt] = now.Add(s.ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign jwt: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and, when present, the expiry. Every failure
// wraps ErrInvalidToken.
func (s *TokenService) Verify(tokenStr string) (Claims, error) {
	token, err := jwt.Parse(tokenStr,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return NewClaims(mapClaims), nil
}
