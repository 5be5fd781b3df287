package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
	"github.com/noah-isme/madrasah-api/pkg/response"
)

// RBAC enforces role-based access control for routes. Callers authenticated
// with a tenant API key act as ADMIN.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		allowedRoles[models.UserRole(a)] = struct{}{}
	}
	return func(c *gin.Context) {
		var role models.UserRole
		switch {
		case c.GetString(ContextAuthMethodKey) == AuthMethodAPIKey:
			role = models.RoleAdmin
		case claimsFrom(c) != nil:
			role = claimsFrom(c).Role
		default:
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
