package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-admission-api/internal/models"
	appErrors "github.com/noah-isme/phd-admission-api/pkg/errors"
	"github.com/noah-isme/phd-admission-api/pkg/response"
)

// RequireRoles rejects principals whose role is not in the allow-list. Ownership and guide
// identity checks happen in the services; this is only the coarse gate.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := c.Get(ContextUserKey)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		user, ok := claims.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, permitted := allowed[user.Role]; !permitted {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
