package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"swapmeet/internal/usecase"
	"swapmeet/pkg/response"
	"swapmeet/pkg/utils"
)

type ConversationHandler struct {
	conversationUseCase *usecase.ConversationUseCase
}

func NewConversationHandler(conversationUseCase *usecase.ConversationUseCase) *ConversationHandler {
	return &ConversationHandler{
		conversationUseCase: conversationUseCase,
	}
}

type createConversationRequest struct {
	OtherUserID string `json:"other_user_id" validate:"required"`
	ItemID      string `json:"item_id" validate:"required"`
}

type sendMessageRequest struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url"`
}

// CreateConversation opens (or reopens) the conversation with another user
// about an item. Repeating the call returns the existing conversation.
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conv, created, err := h.conversationUseCase.CreateOrGetConversation(c.Request().Context(), userID, req.OtherUserID, req.ItemID)
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, conv)
	}
	return response.Success(c, conv)
}

// GetConversations lists the authenticated user's conversations.
func (h *ConversationHandler) GetConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	params := utils.GetPaginationParams(c, 20)

	convs, total, err := h.conversationUseCase.GetConversations(c.Request().Context(), userID, params.Limit, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, convs, total, params.Limit, params.Offset)
}

// GetConversationByID returns one conversation the user participates in.
func (h *ConversationHandler) GetConversationByID(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	conv, err := h.conversationUseCase.GetConversationByID(c.Request().Context(), conversationID, userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

// SendMessage appends a message to a conversation.
func (h *ConversationHandler) SendMessage(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.conversationUseCase.SendMessage(c.Request().Context(), usecase.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       userID,
		Text:           req.Text,
		ImageURL:       req.ImageURL,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetMessages pages through a conversation's message history.
func (h *ConversationHandler) GetMessages(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)
	params := utils.GetPaginationParams(c, 50)

	messages, total, err := h.conversationUseCase.GetMessages(c.Request().Context(), conversationID, userID, params.Limit, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, messages, total, params.Limit, params.Offset)
}

// MarkConversationAsRead zeroes the caller's unread counter.
func (h *ConversationHandler) MarkConversationAsRead(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	if err := h.conversationUseCase.MarkConversationAsRead(c.Request().Context(), conversationID, userID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}

// MarkMessagesAsRead flips the read flag on every message addressed to the
// caller and zeroes their unread counter.
func (h *ConversationHandler) MarkMessagesAsRead(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	if err := h.conversationUseCase.MarkAllMessagesAsRead(c.Request().Context(), conversationID, userID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}
