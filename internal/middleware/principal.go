package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/domain"
)

const (
	// UserIDHeader carries the caller's id, set by the upstream gateway.
	UserIDHeader = "X-User-ID"
	// UserRoleHeader carries the caller's role, set by the upstream gateway.
	UserRoleHeader = "X-User-Role"

	principalKey = "principal"
)

// Principal reads the caller identity injected by the gateway and stores it
// in the gin context. Requests without a usable identity are rejected.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		role := domain.Role(c.GetHeader(UserRoleHeader))
		if userID == "" || !role.Valid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid caller identity"})
			return
		}
		c.Set(principalKey, domain.Principal{UserID: userID, Role: role})
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles.
// It must run after Principal.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid caller identity"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role " + string(p.Role) + " may not perform this operation"})
	}
}

// PrincipalFrom returns the caller stored by Principal.
func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}
