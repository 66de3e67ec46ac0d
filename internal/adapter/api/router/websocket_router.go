package router

import (
	"github.com/labstack/echo/v4"

	"swapmeet/internal/adapter/api/handler"
)

// SetupWebSocketRouter wires the realtime endpoint. Auth happens inside the
// handler, from the token query parameter.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
