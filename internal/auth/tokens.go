package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

const PurposeEmailVerification = "email_verification"

var (
	ErrNoToken      = domain.Errorf(domain.ErrUnauthorized, "not authorized, no token")
	ErrInvalidToken = domain.Errorf(domain.ErrUnauthorized, "invalid token")
	ErrTokenExpired = domain.Errorf(domain.ErrUnauthorized, "token expired")
)

type Claims struct {
	Role    Kind   `json:"role"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a session token for the principal identified by kind and id.
func (t *Tokens) Issue(kind Kind, id string) (string, error) {
	return t.sign(kind, id, "", t.ttl)
}

// IssuePurpose returns a token usable only for purpose, such as e-mail verification.
func (t *Tokens) IssuePurpose(kind Kind, id, purpose string, ttl time.Duration) (string, error) {
	return t.sign(kind, id, purpose, ttl)
}

func (t *Tokens) sign(kind Kind, id, purpose string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := &Claims{
		Role:    kind,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a session token. Purpose tokens are rejected.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	claims, err := t.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParsePurpose verifies a purpose token and returns its subject.
func (t *Tokens) ParsePurpose(raw, purpose string) (string, error) {
	claims, err := t.parse(raw)
	if err != nil {
		return "", err
	}
	if claims.Purpose != purpose {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (t *Tokens) parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
