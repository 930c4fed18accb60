package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evenia/backend/pkg/response"
)

// AdminToken guards the admin API with a static bearer credential.
// An empty token rejects every request.
func AdminToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			response.Unauthorized(c, "invalid admin token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// UserID returns the authenticated user's id set by JWT.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
