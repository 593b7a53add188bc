package handler

import (
	"net/http"

	"furniture-store/internal/middleware"
	"furniture-store/internal/model"
	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler は認証ハンドラー
type AuthHandler struct {
	authService *service.AuthenticationService
	userService service.UserService
}

// NewAuthHandler は新しい認証ハンドラーを作成
func NewAuthHandler(authService *service.AuthenticationService, userService service.UserService) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService}
}

// Register は顧客アカウントの登録
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	response, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// Login はログイン処理
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	response, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Me はログイン中のユーザー情報を返す
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.userService.Me(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
