package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"studiobook/internal/viewer"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "studiobook"
	tokenAudience = "studiobook-api"

	DefaultTokenTTL = 12 * time.Hour
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("jwt secret cannot be empty")
	ErrUnknownRole  = errors.New("unknown role")
)

// Roles a bearer token may carry. The system role is reserved for
// background jobs and never issued.
var issuableRoles = []string{viewer.RoleMember, viewer.RoleInstructor, viewer.RoleAdmin}

// Claims is the identity carried by a bearer token. Tokens are minted by the
// operator CLI or by an upstream identity service sharing the secret.
type Claims struct {
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() viewer.Identity {
	return viewer.Identity{UserID: c.UserID, Email: c.Email, Role: c.Role}
}

func IssueToken(id viewer.Identity, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if !slices.Contains(issuableRoles, id.Role) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, id.Role)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprint(id.UserID),
			Audience:  []string{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies the signature, issuer, audience and expiry of
// tokenString.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
