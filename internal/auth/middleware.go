package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"studiobook/internal/viewer"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey    = "user_id"
	userEmailKey = "user_email"
	userRoleKey  = "user_role"
)

// bearerToken extracts the token from an Authorization header. problem is
// the client-facing reason when there is none.
func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "Authorization header required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || strings.TrimSpace(scheme) != "Bearer" {
		return "", "Invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "Token is empty"
	}
	return token, ""
}

func setIdentity(c *gin.Context, claims *Claims) {
	c.Set(userIDKey, claims.UserID)
	c.Set(userEmailKey, claims.Email)
	c.Set(userRoleKey, claims.Role)
}

func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, problem := bearerToken(c.GetHeader("Authorization"))
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}

		claims, err := ParseToken(tokenString, secret)
		if err != nil {
			msg := "Invalid or malformed token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// RequireRole lets the request through when the caller holds any of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(userRoleKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User role not found"})
			return
		}

		roleStr, ok := role.(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid role type"})
			return
		}

		if !slices.Contains(roles, roleStr) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}

		c.Next()
	}
}

// OptionalAuth sets the caller identity when a valid bearer token is present
// and otherwise lets the request through as anonymous.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, problem := bearerToken(c.GetHeader("Authorization")); problem == "" {
			if claims, err := ParseToken(tokenString, secret); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) (int, bool) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}

	id, ok := userID.(int)
	if !ok {
		return 0, false
	}

	return id, true
}

// RequestContext builds the viewer context for the current request.
func RequestContext(c *gin.Context) viewer.RequestContext {
	now := time.Now()
	userID, ok := GetUserID(c)
	if !ok {
		return viewer.Anonymous(now)
	}

	rc := viewer.ForUser(userID, c.GetString(userRoleKey), now)
	rc.Viewer.Email = c.GetString(userEmailKey)
	return rc
}
