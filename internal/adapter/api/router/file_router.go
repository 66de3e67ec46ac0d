package router

import (
	"github.com/labstack/echo/v4"

	"swapmeet/internal/adapter/api/handler"
	"swapmeet/internal/adapter/api/middleware"
)

func SetupFileRouter(e *echo.Echo, fileHandler *handler.FileHandler, authMiddleware *middleware.AuthMiddleware) {
	group := e.Group("/v1/files")
	group.Use(authMiddleware.Authenticate)

	group.POST("/chat-images", fileHandler.UploadChatImage)
}
