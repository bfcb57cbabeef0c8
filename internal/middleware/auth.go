package middleware

import (
	"net/http"
	"strings"

	"possales/internal/access"
	"possales/internal/apierror"

	"github.com/gin-gonic/gin"
)

const PrincipalKey = "principal"

// JWTAuth validates the Bearer access token on every protected route and
// stores the caller's access.Principal in the context.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abortUnauthenticated(c, "authentication required")
			return
		}

		claims, err := access.ParseToken(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil || claims.TokenType != access.TokenAccess {
			abortUnauthenticated(c, "token invalid or expired")
			return
		}
		if !claims.Role.Valid() {
			abortUnauthenticated(c, "token carries an unknown role")
			return
		}

		c.Set(PrincipalKey, claims.Principal())
		c.Next()
	}
}

// RequireCapability rejects callers whose role does not grant capability.
func RequireCapability(capability access.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.Require(GetPrincipal(c), capability); err != nil {
			status, body := apierror.FromError(err)
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the authenticated caller, or the anonymous zero
// Principal on public routes.
func GetPrincipal(c *gin.Context) access.Principal {
	p, _ := c.Get(PrincipalKey)
	principal, _ := p.(access.Principal)
	return principal
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, &apierror.APIError{
		Detail: msg,
		Code:   apierror.KindUnauthenticated,
	})
}
