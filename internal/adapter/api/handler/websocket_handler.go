package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"swapmeet/internal/adapter/api/middleware"
	"swapmeet/internal/domain/repository"
	ws "swapmeet/internal/infrastructure/websocket"
	"swapmeet/internal/usecase"
	"swapmeet/pkg/errors"
	"swapmeet/pkg/logger"
)

type WebSocketHandler struct {
	wsManager           *ws.Manager
	conversationUseCase *usecase.ConversationUseCase
	authMiddleware      *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // restrict in production
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, conversationUseCase *usecase.ConversationUseCase, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:           wsManager,
		conversationUseCase: conversationUseCase,
		authMiddleware:      authMiddleware,
	}
}

// HandleWebSocket authenticates via the token query parameter, upgrades the
// connection, streams the caller's conversation list, and serves
// join/leave/mark_read/typing frames until the peer disconnects.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthenticated("Token query parameter is required", nil)
	}

	userID, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthenticated("Invalid or expired token", err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.OperationFailed("Failed to upgrade connection", err)
	}

	client := ws.NewClient(userID, conn)
	h.wsManager.Register <- client
	go client.WritePump()

	// Everything started for this connection stops when ctx is canceled.
	ctx, cancel := context.WithCancel(context.Background())

	convSub, err := h.conversationUseCase.SubscribeConversations(ctx, userID)
	if err != nil {
		cancel()
		h.wsManager.Unregister <- client
		return err
	}
	go h.pipeConversationList(client, convSub)

	go h.readLoop(ctx, cancel, client, convSub)

	return nil
}

// pipeConversationList forwards conversation-list snapshots to the client
// until the subscription closes.
func (h *WebSocketHandler) pipeConversationList(client *ws.Client, sub *repository.ConversationSubscription) {
	for snapshot := range sub.Updates() {
		h.sendFrame(client, ws.Frame{
			Type: ws.TypeConversationList,
			Data: snapshot,
		})
	}
	if err := sub.Err(); err != nil {
		h.sendErrorFrame(client, "", err)
	}
}

// readLoop consumes client frames. It owns the per-conversation message
// subscriptions; they are canceled on leave, on replacement, and on exit.
func (h *WebSocketHandler) readLoop(ctx context.Context, cancel context.CancelFunc, client *ws.Client, convSub *repository.ConversationSubscription) {
	messageSubs := make(map[string]*repository.MessageSubscription)

	defer func() {
		for _, sub := range messageSubs {
			sub.Cancel()
		}
		convSub.Cancel()
		cancel()
		h.wsManager.Unregister <- client
	}()

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if gorillaws.IsUnexpectedCloseError(err, gorillaws.CloseGoingAway, gorillaws.CloseNormalClosure) {
				logger.Warn("readLoop: connection for %s closed unexpectedly: %v", client.UserID, err)
			}
			return
		}

		var frame ws.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendErrorFrame(client, "", errors.BadRequest("Malformed frame", err))
			continue
		}

		switch frame.Type {
		case ws.TypePing:
			h.sendFrame(client, ws.Frame{Type: ws.TypePong})

		case ws.TypeJoinConversation:
			h.handleJoin(ctx, client, frame.ConversationID, messageSubs)

		case ws.TypeLeaveConversation:
			if sub, ok := messageSubs[frame.ConversationID]; ok {
				sub.Cancel()
				delete(messageSubs, frame.ConversationID)
			}
			h.wsManager.LeaveRoom(frame.ConversationID, client.UserID)

		case ws.TypeMarkRead:
			if err := h.conversationUseCase.MarkAllMessagesAsRead(ctx, frame.ConversationID, client.UserID); err != nil {
				h.sendErrorFrame(client, frame.ConversationID, err)
			}

		case ws.TypeTyping:
			isTyping := false
			if data, ok := frame.Data.(map[string]interface{}); ok {
				isTyping, _ = data["is_typing"].(bool)
			}
			if err := h.conversationUseCase.HandleTypingEvent(ctx, frame.ConversationID, client.UserID, isTyping); err != nil {
				h.sendErrorFrame(client, frame.ConversationID, err)
			}

		default:
			h.sendErrorFrame(client, "", errors.BadRequest("Unknown frame type: "+frame.Type, nil))
		}
	}
}

func (h *WebSocketHandler) handleJoin(ctx context.Context, client *ws.Client, conversationID string, messageSubs map[string]*repository.MessageSubscription) {
	if conversationID == "" {
		h.sendErrorFrame(client, "", errors.BadRequest("Conversation id is required", nil))
		return
	}

	// Re-joining replaces the previous stream for the same conversation.
	if prev, ok := messageSubs[conversationID]; ok {
		prev.Cancel()
		delete(messageSubs, conversationID)
	}

	sub, err := h.conversationUseCase.SubscribeMessages(ctx, conversationID, client.UserID)
	if err != nil {
		h.sendErrorFrame(client, conversationID, err)
		return
	}
	messageSubs[conversationID] = sub
	h.wsManager.JoinRoom(conversationID, client.UserID)

	go func() {
		for window := range sub.Updates() {
			h.sendFrame(client, ws.Frame{
				Type:           ws.TypeMessageWindow,
				ConversationID: conversationID,
				Data:           window,
			})
		}
		if err := sub.Err(); err != nil {
			h.sendErrorFrame(client, conversationID, err)
		}
	}()
}

func (h *WebSocketHandler) sendFrame(client *ws.Client, frame ws.Frame) {
	frame.Timestamp = time.Now().Format(time.RFC3339)
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Error("sendFrame: marshal %s frame failed: %v", frame.Type, err)
		return
	}
	h.wsManager.SendToUser(client.UserID, payload)
}

func (h *WebSocketHandler) sendErrorFrame(client *ws.Client, conversationID string, err error) {
	code := "UNKNOWN_ERROR"
	message := "An unexpected error occurred"
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		code = appErr.Code
		message = appErr.Message
	}

	h.sendFrame(client, ws.Frame{
		Type:           ws.TypeError,
		ConversationID: conversationID,
		Data: map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
