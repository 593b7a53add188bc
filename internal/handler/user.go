package handler

import (
	"net/http"
	"strconv"

	"furniture-store/internal/middleware"
	"furniture-store/internal/model"
	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
)

// UserHandler はユーザー管理と従業員管理のHTTPハンドラー
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler は新しいユーザーハンドラーを作成
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetUsers はユーザー一覧を取得（?role= と ?active= で絞り込み）
func (h *UserHandler) GetUsers(c *gin.Context) {
	active, ok := parseActiveQuery(c)
	if !ok {
		return
	}
	filters := service.UserFilters{Role: model.Role(c.Query("role")), Active: active}

	users, err := h.userService.ListUsers(c.Request.Context(), middleware.CurrentUser(c), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

// GetUser はユーザーを取得
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateUser はユーザー情報を更新
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req model.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeactivateUser はユーザーを無効化
func (h *UserHandler) DeactivateUser(c *gin.Context) {
	user, err := h.userService.DeactivateUser(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// GetEmployees は従業員一覧を取得
func (h *UserHandler) GetEmployees(c *gin.Context) {
	active, ok := parseActiveQuery(c)
	if !ok {
		return
	}

	employees, err := h.userService.ListEmployees(c.Request.Context(), middleware.CurrentUser(c), active)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, employees)
}

// CreateEmployee は従業員アカウントを作成
func (h *UserHandler) CreateEmployee(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	employee, err := h.userService.CreateEmployee(c.Request.Context(), middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, employee)
}

// UpdateEmployee は従業員情報を更新
func (h *UserHandler) UpdateEmployee(c *gin.Context) {
	var req model.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	employee, err := h.userService.UpdateEmployee(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, employee)
}

// ToggleEmployeeStatus は従業員の有効・無効を切り替え
func (h *UserHandler) ToggleEmployeeStatus(c *gin.Context) {
	employee, err := h.userService.ToggleEmployeeStatus(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, employee)
}

// parseActiveQuery は ?active= を解釈する。不正な値なら 400 を返して false
func parseActiveQuery(c *gin.Context) (*bool, bool) {
	raw := c.Query("active")
	if raw == "" {
		return nil, true
	}
	active, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "active must be true or false"})
		return nil, false
	}
	return &active, true
}
