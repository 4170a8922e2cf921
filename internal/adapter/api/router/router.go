package router

import (
	"github.com/labstack/echo/v4"

	"campusmarket/internal/adapter/api/middleware"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, environment string) {
	SetupHealthRouter(e)
	SetupConversationRouter(e, authMiddleware)
	SetupWebSocketRouter(e, authMiddleware)
	SetupDevRouter(e, environment)
}
