package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/layer-3/kusaidia/service"
)

// SetupRouter sets up the Gin router. channel serves the notification websocket and may be nil.
func SetupRouter(authService *service.AuthService, notifications *service.NotificationService, channel http.Handler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(authService)
	notificationHandlers := NewNotificationHandlers(notifications)
	authRequired := AuthMiddleware(authService)

	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/nonce", handlers.Nonce)
		auth.POST("/verify", handlers.Verify)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected auth routes
	protected := router.Group("/auth", authRequired)
	{
		protected.GET("/me", handlers.Me)
		protected.GET("/authorize", handlers.Authorize)
		protected.GET("/roles", handlers.Roles)
		protected.POST("/add-role", handlers.AddRole)
		protected.POST("/switch-role", handlers.SwitchRole)
		protected.POST("/ensure-role", handlers.EnsureRole)
	}

	notificationRoutes := router.Group("/notifications", authRequired)
	{
		notificationRoutes.GET("/", notificationHandlers.List)
		notificationRoutes.GET("/unread_count/", notificationHandlers.UnreadCount)
		notificationRoutes.POST("/mark_all_read/", notificationHandlers.MarkAllRead)
		notificationRoutes.POST("/:id/mark_read/", notificationHandlers.MarkRead)
	}

	if channel != nil {
		router.GET("/ws/notifications/", gin.WrapH(channel))
	}

	return router
}
