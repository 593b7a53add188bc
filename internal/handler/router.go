package handler

import (
	"net/http"

	"furniture-store/internal/middleware"
	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Services はルーターが公開するワークフロー群。Cart は Redis 未設定なら nil
type Services struct {
	Auth          *service.AuthenticationService
	Authorization *service.AuthorizationService
	Users         service.UserService
	Products      service.ProductService
	Orders        service.OrderService
	Invoices      service.InvoiceService
	Cart          service.CartService
}

// NewRouter はすべてのAPIルートを登録したルーターを作成
func NewRouter(svc Services, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(log))

	// CORS設定
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
	r.Use(middleware.AuthMiddleware(svc.Auth))

	authHandler := NewAuthHandler(svc.Auth, svc.Users)
	permissionHandler := NewPermissionHandler(svc.Authorization)
	userHandler := NewUserHandler(svc.Users)
	productHandler := NewProductHandler(svc.Products)
	orderHandler := NewOrderHandler(svc.Orders)
	invoiceHandler := NewInvoiceHandler(svc.Invoices)

	// ヘルスチェックエンドポイント
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"features": gin.H{
				"cart": svc.Cart != nil,
			},
		})
	})

	api := r.Group("/api")

	// Public routes
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/products", productHandler.GetProducts)
	api.GET("/products/category/:category", productHandler.GetProductsByCategory)
	api.GET("/products/:id", productHandler.GetProduct)

	// 以降は認証必須
	authed := api.Group("", middleware.RequireAuthentication())

	authed.GET("/me", authHandler.Me)
	authed.GET("/me/permissions", permissionHandler.MyPermissions)

	// 商品管理（管理者・従業員）
	authed.POST("/products", productHandler.CreateProduct)
	authed.PUT("/products/:id", productHandler.UpdateProduct)
	authed.DELETE("/products/:id", productHandler.DeleteProduct)

	// 注文
	authed.POST("/orders", orderHandler.CreateOrder)
	authed.GET("/orders", orderHandler.GetOrders)
	authed.GET("/orders/mine", orderHandler.GetMyOrders)
	authed.GET("/orders/:id", orderHandler.GetOrder)
	authed.PATCH("/orders/:id/status", orderHandler.UpdateOrderStatus)
	authed.POST("/orders/:id/cancel", orderHandler.CancelOrder)
	authed.GET("/orders/:id/history", orderHandler.GetOrderHistory)

	// 請求書
	authed.POST("/orders/:id/invoices", invoiceHandler.GenerateInvoice)
	authed.GET("/orders/:id/invoices", invoiceHandler.GetOrderInvoices)
	authed.GET("/invoices", invoiceHandler.GetInvoices)
	authed.GET("/invoices/:id", invoiceHandler.GetInvoice)
	authed.GET("/invoices/:id/download", invoiceHandler.DownloadInvoice)

	// ユーザー管理
	authed.GET("/users", userHandler.GetUsers)
	authed.GET("/users/:id", userHandler.GetUser)
	authed.PATCH("/users/:id", userHandler.UpdateUser)
	authed.POST("/users/:id/deactivate", userHandler.DeactivateUser)
	authed.GET("/users/:id/orders", orderHandler.GetUserOrders)

	// 従業員管理（管理者のみ）
	employees := authed.Group("/employees",
		middleware.RequirePermission(svc.Authorization, service.ResourceUsers, service.ActionManage))
	employees.GET("", userHandler.GetEmployees)
	employees.POST("", userHandler.CreateEmployee)
	employees.PUT("/:id", userHandler.UpdateEmployee)
	employees.POST("/:id/toggle", userHandler.ToggleEmployeeStatus)

	// カート（Redis 設定時のみ）
	if svc.Cart != nil {
		cartHandler := NewCartHandler(svc.Cart)
		cart := authed.Group("/cart")
		cart.GET("", cartHandler.GetCart)
		cart.DELETE("", cartHandler.ClearCart)
		cart.POST("/items", cartHandler.AddItem)
		cart.PUT("/items/:productId", cartHandler.SetItemQuantity)
		cart.DELETE("/items/:productId", cartHandler.RemoveItem)
		cart.POST("/checkout", cartHandler.Checkout)
	}

	return r
}
