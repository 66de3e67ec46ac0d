package router

import (
	"github.com/labstack/echo/v4"

	"swapmeet/internal/adapter/api/handler"
	"swapmeet/internal/adapter/api/middleware"
)

func Setup(
	e *echo.Echo,
	conversationHandler *handler.ConversationHandler,
	wsHandler *handler.WebSocketHandler,
	fileHandler *handler.FileHandler,
	healthHandler *handler.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	SetupConversationRouter(e, conversationHandler, authMiddleware)
	SetupWebSocketRouter(e, wsHandler)
	SetupFileRouter(e, fileHandler, authMiddleware)
	SetupHealthRouter(e, healthHandler)
}
