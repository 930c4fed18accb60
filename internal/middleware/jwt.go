package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/evenia/backend/internal/auth"
	"github.com/evenia/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// TokenValidator checks session tokens; *auth.JWTService implements it.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWT authenticates the request from its bearer token and stores the claims in context.
func JWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		claims, err := tokens.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}
