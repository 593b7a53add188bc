package handler

import (
	"net/http"
	"strconv"

	"furniture-store/internal/middleware"
	"furniture-store/internal/model"
	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
)

// ProductHandler は商品のHTTPハンドラー
type ProductHandler struct {
	productService service.ProductService
}

// NewProductHandler は新しい商品ハンドラーを作成
func NewProductHandler(productService service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// GetProducts は商品一覧を取得
func (h *ProductHandler) GetProducts(c *gin.Context) {
	// フィルタ条件を取得
	filters := service.ProductFilters{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		InStock:  c.Query("in_stock") == "true",
	}

	// ページングパラメータ
	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			filters.Page = p
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filters.Limit = l
		}
	}

	response, err := h.productService.ListProducts(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetProductsByCategory はカテゴリ別の商品一覧を取得
func (h *ProductHandler) GetProductsByCategory(c *gin.Context) {
	products, err := h.productService.ListProductsByCategory(c.Request.Context(), c.Param("category"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, products)
}

// GetProduct は指定された商品を取得
func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, err := h.productService.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// CreateProduct は新しい商品を作成
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req model.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.productService.CreateProduct(c.Request.Context(), middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, product)
}

// UpdateProduct は商品を更新
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	var req model.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.productService.UpdateProduct(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// DeleteProduct は商品を削除
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	if err := h.productService.DeleteProduct(c.Request.Context(), middleware.CurrentUser(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
