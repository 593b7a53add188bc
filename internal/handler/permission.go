package handler

import (
	"net/http"

	"furniture-store/internal/middleware"
	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
)

// PermissionHandler はログイン中のユーザーの権限を表示するハンドラー
type PermissionHandler struct {
	authzService *service.AuthorizationService
}

// NewPermissionHandler は新しい権限ハンドラーを作成
func NewPermissionHandler(authzService *service.AuthorizationService) *PermissionHandler {
	return &PermissionHandler{authzService: authzService}
}

// MyPermissions はロールが持つ権限（継承分を含む）を一覧表示
func (h *PermissionHandler) MyPermissions(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil || !user.IsActive {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	permissions, err := h.authzService.GetRolePermissions(user.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	grants := make([]gin.H, 0, len(permissions))
	for _, p := range permissions {
		if len(p) < 3 {
			continue
		}
		grants = append(grants, gin.H{"role": p[0], "resource": p[1], "action": p[2]})
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":      user.ID,
		"role":        user.Role,
		"permissions": grants,
	})
}
