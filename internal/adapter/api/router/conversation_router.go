package router

import (
	"github.com/labstack/echo/v4"

	"campusmarket/internal/adapter/api/handler"
	"campusmarket/internal/adapter/api/middleware"
)

func SetupConversationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	conversationHandler := handler.GetConversationHandler()

	conversationGroup := e.Group("/v1/conversations")
	conversationGroup.Use(authMiddleware.Authenticate)

	conversationGroup.POST("", conversationHandler.ResolveConversation)
	conversationGroup.GET("", conversationHandler.ListConversations)
	conversationGroup.GET("/:id/messages", conversationHandler.GetMessages)
	conversationGroup.POST("/:id/messages", conversationHandler.SendMessage)
}
