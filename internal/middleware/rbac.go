package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/report-api/pkg/errors"
	"github.com/noah-isme/report-api/pkg/response"
)

// RequirePermissions lets the request through when the principal holds every
// listed right code. It must run after JWT.
func RequirePermissions(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFrom(c)
		if !principal.Authenticated() {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !principal.HasPerms(perms...) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
