package middleware

import (
	"errors"
	"net/http"

	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
)

// RequirePermission は所有者を問わない権限をルート単位で要求するミドルウェア。
// 所有者による判定が必要な操作は各サービスで行う
func RequirePermission(authz service.Authorizer, resource service.Resource, action service.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := authz.Authorize(CurrentUser(c), resource, action, "")
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrUnauthenticated):
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		case errors.Is(err, service.ErrUnauthorized):
			abortWithError(c, http.StatusForbidden, "forbidden", "Access denied")
		default:
			abortWithError(c, http.StatusInternalServerError, "internal_error", "Authorization check failed")
		}
	}
}
