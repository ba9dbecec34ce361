// Package auth verifies the caller identity before any coordinator operation
// is invoked. The token is minted by the surrounding platform; this service
// only checks the signature and extracts {userId, displayName, role}.
package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"collabd/pkg/types"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates tok, returning the identity it carries.
func (v *Verifier) Verify(tok string) (types.Identity, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return types.Identity{}, err
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return types.Identity{}, ErrInvalidToken
	}

	identity := types.Identity{
		UserID:      claims.UID,
		DisplayName: claims.Name,
		Role:        claims.Role,
	}
	if err := identity.Validate(); err != nil {
		return types.Identity{}, err
	}
	return identity, nil
}

// Sign mints a token for the given identity. Used by tests and dev tooling;
// production tokens come from the platform's identity provider.
func (v *Verifier) Sign(identity types.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UID:  identity.UserID,
		Name: identity.DisplayName,
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
