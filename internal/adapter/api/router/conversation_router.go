package router

import (
	"github.com/labstack/echo/v4"

	"swapmeet/internal/adapter/api/handler"
	"swapmeet/internal/adapter/api/middleware"
)

// SetupConversationRouter wires the conversation REST endpoints.
func SetupConversationRouter(e *echo.Echo, conversationHandler *handler.ConversationHandler, authMiddleware *middleware.AuthMiddleware) {
	group := e.Group("/v1/conversations")
	group.Use(authMiddleware.Authenticate)

	group.POST("", conversationHandler.CreateConversation)            // open or reopen a conversation
	group.GET("", conversationHandler.GetConversations)               // list own conversations
	group.GET("/:id", conversationHandler.GetConversationByID)        // fetch one conversation
	group.PUT("/:id/read", conversationHandler.MarkConversationAsRead) // zero the unread counter
	group.PUT("/:id/messages/read", conversationHandler.MarkMessagesAsRead) // flip per-message read flags

	group.POST("/:id/messages", conversationHandler.SendMessage) // send a message
	group.GET("/:id/messages", conversationHandler.GetMessages)  // page message history
}
