package handler

import (
	"net/http"

	"furniture-store/internal/middleware"
	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
)

// InvoiceHandler は請求書のHTTPハンドラー
type InvoiceHandler struct {
	invoiceService service.InvoiceService
}

// NewInvoiceHandler は新しい請求書ハンドラーを作成
func NewInvoiceHandler(invoiceService service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// GenerateInvoice は注文の請求書を発行
func (h *InvoiceHandler) GenerateInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GenerateInvoice(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invoice)
}

// GetOrderInvoices は注文の請求書一覧を取得
func (h *InvoiceHandler) GetOrderInvoices(c *gin.Context) {
	invoices, err := h.invoiceService.ListInvoicesByOrder(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoices)
}

// GetInvoices は全請求書を取得
func (h *InvoiceHandler) GetInvoices(c *gin.Context) {
	invoices, err := h.invoiceService.ListInvoices(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoices)
}

// GetInvoice は請求書を取得
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// DownloadInvoice は請求書を注文明細付きで返す
func (h *InvoiceHandler) DownloadInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.DownloadInvoice(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+invoice.InvoiceNumber+".json\"")
	c.JSON(http.StatusOK, invoice)
}
