// Package auth turns tokens issued by the identity module into a domain.Identity.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Consult/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role claim")
	ErrNoSecret     = errors.New("signing secret is empty")
)

// Claims represents JWT custom claims
type Claims struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	ProfileID uint   `json:"profile_id"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	issuer string
}

func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer}
}

// Sign issues an HS256 token for id; used by tests and local tooling.
func (i *Issuer) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		UserID:    id.UserID,
		Role:      string(id.Role),
		ProfileID: id.ProfileID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse validates an HS256 token. An issuer without a secret accepts nothing.
func (i *Issuer) Parse(tokenString string) (domain.Identity, error) {
	if len(i.secret) == 0 {
		return domain.Identity{}, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}
	role := domain.Role(claims.Role)
	if !role.Valid() {
		return domain.Identity{}, ErrInvalidRole
	}
	return domain.Identity{UserID: claims.UserID, Role: role, ProfileID: claims.ProfileID}, nil
}
