package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hookbridge/internal/constants"
	"hookbridge/internal/deduplication"
)

// StateStore remembers consumed state ids until the state would have
// expired anyway. deduplication.Store satisfies it.
type StateStore interface {
	SetNX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error)
}

// StateIssuer mints and checks the CSRF state carried through the install
// redirect. States are HS256 tokens with a random jti and a short expiry.
// Each jti is accepted by Consume at most once.
type StateIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	used   StateStore
	now    func() time.Time
}

func NewStateIssuer(secret string, ttl time.Duration) (*StateIssuer, error) {
	if secret == "" {
		return nil, errors.New("oauth state secret is required")
	}
	if ttl <= 0 {
		ttl = constants.DefaultOAuthStateTTL
	}
	return &StateIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: constants.ServiceName,
		used:   deduplication.NewMemoryStore(),
		now:    time.Now,
	}, nil
}

func (s *StateIssuer) Issue() (string, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, issuer and expiry without consuming the state.
func (s *StateIssuer) Verify(state string) error {
	_, err := s.parse(state)
	return err
}

// Consume verifies state and marks its jti as used. A second Consume of the
// same state fails with ErrInvalidState.
func (s *StateIssuer) Consume(ctx context.Context, state string) error {
	claims, err := s.parse(state)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		return ErrInvalidState
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return ErrInvalidState
	}

	fresh, err := s.used.SetNX(ctx, constants.CacheKeyPrefixOAuthState+claims.ID, 1, remaining)
	if err != nil {
		return fmt.Errorf("failed to record oauth state: %w", err)
	}
	if !fresh {
		return ErrInvalidState
	}
	return nil
}

func (s *StateIssuer) parse(state string) (*jwt.RegisteredClaims, error) {
	if state == "" {
		return nil, ErrInvalidState
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(state, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidState
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
