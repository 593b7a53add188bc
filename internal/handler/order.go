package handler

import (
	"net/http"

	"furniture-store/internal/middleware"
	"furniture-store/internal/model"
	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
)

// OrderHandler は注文のHTTPハンドラー
type OrderHandler struct {
	orderService service.OrderService
}

// NewOrderHandler は新しい注文ハンドラーを作成
func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CreateOrder は注文を作成
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req model.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// GetOrders は全注文を取得（?status= で絞り込み）
func (h *OrderHandler) GetOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), middleware.CurrentUser(c), model.OrderStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// GetMyOrders はログイン中のユーザーの注文を取得
func (h *OrderHandler) GetMyOrders(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		respondError(c, service.ErrUnauthenticated)
		return
	}

	orders, err := h.orderService.ListOrdersByUser(c.Request.Context(), user, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// GetUserOrders は指定ユーザーの注文を取得
func (h *OrderHandler) GetUserOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrdersByUser(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// GetOrder は注文を取得
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus は注文ステータスを更新
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	var req model.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// CancelOrder は注文をキャンセル
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	order, err := h.orderService.CancelOrder(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// GetOrderHistory は注文のステータス変更履歴を取得
func (h *OrderHandler) GetOrderHistory(c *gin.Context) {
	history, err := h.orderService.OrderHistory(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}
