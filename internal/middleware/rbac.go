package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tutorlane/tutorlane-api/internal/models"
	appErrors "github.com/tutorlane/tutorlane-api/pkg/errors"
	"github.com/tutorlane/tutorlane-api/pkg/response"
)

// SelfRole grants access when the authenticated user is the resource owner,
// matched against the :id route parameter.
const SelfRole = "SELF"

// RBAC enforces role-based access control for routes. Entries are role
// names, plus the SelfRole marker for owner access.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	roles := make(map[models.UserRole]bool, len(allowed))
	for _, entry := range allowed {
		if entry == SelfRole {
			allowSelf = true
		} else {
			roles[models.UserRole(entry)] = true
		}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		ownsResource := allowSelf && claims.UserID != "" && c.Param("id") == claims.UserID
		if !roles[claims.Role] && !ownsResource {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, 0, len(roles))
	for _, r := range roles {
		allowed = append(allowed, string(r))
	}
	return RBAC(allowed...)
}
