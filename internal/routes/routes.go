package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledger-api/internal/controller"
	"ledger-api/internal/middleware"
	"ledger-api/internal/monitoring"
)

type Router struct {
	engine               *gin.Engine
	walletController     *controller.WalletController
	orderController      *controller.OrderController
	withdrawalController *controller.WithdrawalController
	adminController      *controller.AdminController
	authMiddleware       *middleware.AuthMiddleware
	logMiddleware        *middleware.LoggingMiddleware
	rateLimitMiddleware  *middleware.RateLimitMiddleware
	healthChecker        monitoring.HealthChecker
}

type RouterConfig struct {
	Debug          bool
	EnableMetrics  bool
	MetricsPath    string
	AllowedOrigins []string
}

func NewRouter(
	walletController *controller.WalletController,
	orderController *controller.OrderController,
	withdrawalController *controller.WithdrawalController,
	adminController *controller.AdminController,
	authMiddleware *middleware.AuthMiddleware,
	logMiddleware *middleware.LoggingMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	healthChecker monitoring.HealthChecker,
	config *RouterConfig,
) *Router {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Router{
		engine:               gin.New(),
		walletController:     walletController,
		orderController:      orderController,
		withdrawalController: withdrawalController,
		adminController:      adminController,
		authMiddleware:       authMiddleware,
		logMiddleware:        logMiddleware,
		rateLimitMiddleware:  rateLimitMiddleware,
		healthChecker:        healthChecker,
	}
}

func (r *Router) SetupRoutes(config *RouterConfig) {
	r.setupGlobalMiddleware(config)
	r.setupHealthRoutes(config)

	// Payment-confirmation callbacks authenticate with the internal
	// service key, not a user token.
	internal := r.engine.Group("/api/v1/internal")
	internal.Use(r.authMiddleware.ServiceAuth())
	internal.POST("/wallets/:userId/deposit", r.walletController.Deposit)

	v1 := r.engine.Group("/api/v1")
	r.setupAPIRoutes(v1)
}

func (r *Router) setupGlobalMiddleware(config *RouterConfig) {
	r.engine.Use(gin.Recovery())
	r.engine.Use(requestid.New())
	r.engine.Use(r.logMiddleware.RequestLogger())
	r.engine.Use(middleware.SecurityHeaders())
	r.engine.Use(r.rateLimitMiddleware.IPRateLimit())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.engine.Use(cors.New(corsConfig))
}

func (r *Router) setupHealthRoutes(config *RouterConfig) {
	r.engine.GET("/health", func(c *gin.Context) {
		status := r.healthChecker.CheckHealth(c.Request.Context())
		code := http.StatusOK
		if status.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if config.EnableMetrics {
		path := config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}
}

func (r *Router) setupAPIRoutes(v1 *gin.RouterGroup) {
	v1.Use(r.authMiddleware.JWTAuth())
	v1.Use(r.rateLimitMiddleware.UserRateLimit())

	wallets := v1.Group("/wallets")
	{
		wallets.POST("", r.walletController.CreateWallet)

		user := wallets.Group("/:userId")
		user.Use(r.authMiddleware.ValidateUserAccess())
		{
			user.GET("", r.walletController.GetWallet)
			user.GET("/balance", r.walletController.GetBalance)
			user.GET("/entries", r.walletController.GetEntryHistory)
			user.POST("/deposit", r.rateLimitMiddleware.MovementRateLimit(), r.walletController.Deposit)
			user.POST("/transfer", r.rateLimitMiddleware.MovementRateLimit(), r.walletController.Transfer)
		}
	}

	orders := v1.Group("/orders")
	{
		orders.POST("", r.rateLimitMiddleware.MovementRateLimit(), r.orderController.PlaceOrder)
		orders.GET("", r.orderController.ListOrders)
		orders.GET("/:orderId", r.orderController.GetOrder)
	}

	positions := v1.Group("/positions")
	{
		positions.GET("", r.orderController.ListPositions)
		positions.GET("/:coinId", r.orderController.GetPosition)
	}

	withdrawals := v1.Group("/withdrawals")
	{
		withdrawals.POST("", r.rateLimitMiddleware.MovementRateLimit(), r.withdrawalController.RequestWithdrawal)
		withdrawals.GET("", r.withdrawalController.ListWithdrawals)
		withdrawals.GET("/:withdrawalId", r.withdrawalController.GetWithdrawal)
	}

	admin := v1.Group("/admin")
	admin.Use(r.authMiddleware.AdminAuth())
	{
		admin.GET("/wallets", r.adminController.ListWallets)
		admin.GET("/withdrawals/pending", r.adminController.ListPendingWithdrawals)
		admin.POST("/withdrawals/:withdrawalId/decide", r.adminController.DecideWithdrawal)
		admin.POST("/reconcile", r.adminController.ReconcileAllWallets)
		admin.POST("/reconcile/:userId", r.adminController.ReconcileWallet)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
