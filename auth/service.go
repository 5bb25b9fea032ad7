// Package auth verifies who is calling the escrow API. Identities are
// carried in JWTs minted by the marketplace identity service; this
// package shares its signing secret. Privileged service callers
// authenticate with a pre-shared arbiter key instead of a token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken signals a token that failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidArbiterKey signals a rejected arbiter key.
	ErrInvalidArbiterKey = errors.New("auth: invalid arbiter key")
)

// Service verifies bearer tokens and arbiter keys.
type Service struct {
	jwtSecret      []byte
	arbiterKeyHash []byte
	ttl            time.Duration
	now            func() time.Time
}

// NewService creates an auth service sharing jwtSecret with the token
// issuer.
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		ttl:       24 * time.Hour,
		now:       time.Now,
	}
}

// WithArbiterKeyHash installs the bcrypt hash of the arbiter key. With
// no hash installed every arbiter key is rejected.
func (s *Service) WithArbiterKeyHash(hash string) *Service {
	s.arbiterKeyHash = []byte(hash)
	return s
}

// WithClock overrides time for deterministic tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTTL overrides the lifetime of issued tokens.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	s.ttl = ttl
	return s
}

// IssueToken mints a signed token for the user. The escrow service
// trusts tokens from the identity service; issuance here exists for
// service-to-service calls and tests.
func (s *Service) IssueToken(userID string, role Role) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("auth: user id is required")
	}
	if !isValidRole(role) {
		return "", fmt.Errorf("auth: invalid role %q", role)
	}
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     now.Add(s.ttl).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a bearer token and returns the caller identity.
func (s *Service) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("auth: invalid user_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("auth: invalid role in token")
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Identity{}, fmt.Errorf("auth: invalid role %q in token", roleStr)
	}
	return Identity{UserID: userID, Role: role}, nil
}

// VerifyArbiterKey checks a pre-shared arbiter key against the
// configured hash.
func (s *Service) VerifyArbiterKey(key string) error {
	if len(s.arbiterKeyHash) == 0 || key == "" {
		return ErrInvalidArbiterKey
	}
	if err := bcrypt.CompareHashAndPassword(s.arbiterKeyHash, []byte(key)); err != nil {
		return ErrInvalidArbiterKey
	}
	return nil
}

// HashArbiterKey produces the bcrypt hash to store in configuration.
func HashArbiterKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash arbiter key: %w", err)
	}
	return string(hash), nil
}
