package handler

import (
	"github.com/gin-gonic/gin"
	"realtime_chat/internal/config"
	"realtime_chat/internal/middleware"
	"realtime_chat/pkg/logger"
)

func NewRouter(handlers *Handlers, authMiddleware *middleware.AuthMiddleware, cfg *config.Config, log logger.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)

	// Токен проверяется шлюзом при рукопожатии
	router.GET("/ws", handlers.WebSocket.Handle)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth())
	{
		rooms := v1.Group("/rooms")
		{
			rooms.POST("", handlers.Room.Create)
			rooms.GET("", handlers.Room.List)
			rooms.GET("/:id", handlers.Room.GetByID)
			rooms.PATCH("/:id", handlers.Room.Update)
			rooms.DELETE("/:id", handlers.Room.Delete)
			rooms.POST("/:id/members", handlers.Room.AddMember)
			rooms.DELETE("/:id/members/:userId", handlers.Room.RemoveMember)
			rooms.GET("/:id/messages", handlers.Message.GetMessages)
		}

		presence := v1.Group("/presence")
		{
			presence.GET("/online", handlers.Presence.Online)
			presence.GET("/:userId", handlers.Presence.Get)
		}

		v1.GET("/connections", handlers.WebSocket.Status)
	}

	return router
}
