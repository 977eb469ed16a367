package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("empty secret")
)

// Claims identify a user across reconnects. Subject is the stable user id.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type Identity struct {
	UserId      string
	DisplayName string
}

type Verifier struct {
	secret []byte
}

func New(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	return &Verifier{secret: []byte(secret)}, nil
}

// Issue signs a token for userId. The auth provider owns issuance in production; this is
// used by tools and tests sharing the same secret.
func (v *Verifier) Issue(userId, displayName string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(v.secret)
}

func (v *Verifier) Verify(tokenString string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserId:      claims.Subject,
		DisplayName: claims.Name,
	}, nil
}
