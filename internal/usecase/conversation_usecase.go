package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"swapmeet/internal/domain/entity"
	"swapmeet/internal/domain/repository"
	"swapmeet/internal/infrastructure/ratelimit"
	"swapmeet/internal/infrastructure/websocket"
	"swapmeet/pkg/chatid"
	"swapmeet/pkg/errors"
	"swapmeet/pkg/logger"
)

// imagePlaceholder is the summary text shown for image-only messages.
const imagePlaceholder = "Image"

// ConversationUseCase is the only component that touches both the
// conversation store and the message store within one logical operation.
type ConversationUseCase struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	userRepo         repository.UserRepository
	itemRepo         repository.ItemRepository
	wsManager        *websocket.Manager
	rateLimiter      *ratelimit.RateLimiter
	messageWindow    int
}

func NewConversationUseCase(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	itemRepo repository.ItemRepository,
	wsManager *websocket.Manager,
	messageWindow int,
) *ConversationUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	if messageWindow <= 0 {
		messageWindow = 50
	}

	return &ConversationUseCase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		itemRepo:         itemRepo,
		wsManager:        wsManager,
		rateLimiter:      rateLimiter,
		messageWindow:    messageWindow,
	}
}

// CreateOrGetConversation opens the conversation between requesterID and
// otherUserID about itemID, creating it if this is the first contact. The
// conversation id is derived from the participant pair and the item, so any
// two calls with the same trio converge on the same record regardless of
// argument order or timing. The returned bool is true when this call created
// the conversation.
func (uc *ConversationUseCase) CreateOrGetConversation(ctx context.Context, requesterID, otherUserID, itemID string) (*entity.Conversation, bool, error) {
	if requesterID == "" || otherUserID == "" || itemID == "" {
		return nil, false, errors.BadRequest("User ids and item id are required", nil)
	}
	if requesterID == otherUserID {
		return nil, false, errors.BadRequest("Cannot start a conversation with yourself", nil)
	}

	conversationID := chatid.Derive(requesterID, otherUserID, itemID)

	// Fast path: the conversation already exists. Reopening a chat must not
	// consume creation budget or re-read the item and user records.
	existing, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, "CONVERSATION_NOT_FOUND") {
		return nil, false, err
	}

	if allowed, wait := uc.rateLimiter.Allow(requesterID, "create_conversation"); !allowed {
		return nil, false, errors.TooManyRequests(fmt.Sprintf("Conversation creation limit reached, retry in %v", wait.Round(time.Second)))
	}

	item, err := uc.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, false, err
	}

	var buyerID, sellerID string
	switch item.OwnerID {
	case otherUserID:
		buyerID, sellerID = requesterID, otherUserID
	case requesterID:
		buyerID, sellerID = otherUserID, requesterID
	default:
		return nil, false, errors.OperationFailed("Neither participant owns the item", nil)
	}

	buyer, err := uc.userRepo.GetByID(ctx, buyerID)
	if err != nil {
		return nil, false, err
	}
	seller, err := uc.userRepo.GetByID(ctx, sellerID)
	if err != nil {
		return nil, false, err
	}

	conv := &entity.Conversation{
		ID:             conversationID,
		ItemID:         item.ID,
		ItemLabel:      item.Label,
		ItemImageURL:   item.ImageURL,
		BuyerID:        buyer.ID,
		BuyerName:      buyer.DisplayName,
		BuyerPhotoURL:  buyer.PhotoURL,
		SellerID:       seller.ID,
		SellerName:     seller.DisplayName,
		SellerPhotoURL: seller.PhotoURL,
		ParticipantIDs: []string{buyerID, sellerID},
		UnreadCount:    map[string]int{buyerID: 0, sellerID: 0},
		CreatedAt:      time.Now(),
	}

	stored, created, err := uc.conversationRepo.CreateIfAbsent(ctx, conv)
	if err != nil {
		return nil, false, err
	}

	if created {
		uc.notifyUser(otherUserID, websocket.TypeConversationUpdate, stored.ID, stored)
	}

	return stored, created, nil
}

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Text           string
	ImageURL       string
}

// SendMessage validates and appends a message, updating the conversation
// summary and the receiver's unread counter in the same atomic write. On any
// error the caller's draft is preserved; nothing is partially applied.
func (uc *ConversationUseCase) SendMessage(ctx context.Context, input SendMessageInput) (*entity.Message, error) {
	if input.ConversationID == "" || input.SenderID == "" {
		return nil, errors.BadRequest("Conversation id and sender id are required", nil)
	}

	text := strings.TrimSpace(input.Text)
	if text == "" && input.ImageURL == "" {
		return nil, errors.MessageSend("Message is empty", nil)
	}
	summary := text
	if summary == "" {
		summary = imagePlaceholder
	}

	if allowed, wait := uc.rateLimiter.Allow(input.SenderID, "send_message"); !allowed {
		return nil, errors.TooManyRequests(fmt.Sprintf("Message rate limit reached, retry in %v", wait.Round(time.Second)))
	}

	conv, err := uc.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(input.SenderID) {
		return nil, errors.InsufficientPermissions("Not a participant of this conversation", nil)
	}
	receiverID := conv.OtherParticipant(input.SenderID)

	senderName, senderPhoto := uc.senderSnapshot(ctx, conv, input.SenderID)

	msg := &entity.Message{
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		SenderName:     senderName,
		SenderPhotoURL: senderPhoto,
		ReceiverID:     receiverID,
		Text:           text,
		ImageURL:       input.ImageURL,
		IsRead:         false,
	}

	patch := repository.ConversationPatch{
		LastMessageText:     &summary,
		LastMessageSenderID: &input.SenderID,
		TouchLastMessageAt:  true,
		IncrementUnread:     receiverID,
	}

	if err := uc.messageRepo.AppendAndPatchConversation(ctx, msg, patch); err != nil {
		if errors.Is(err, "NETWORK_ERROR") || errors.Is(err, "CONVERSATION_NOT_FOUND") {
			return nil, err
		}
		return nil, errors.MessageSend("Failed to send message", err)
	}

	uc.broadcastToRoom(input.ConversationID, websocket.TypeNewMessage, msg, input.SenderID)
	uc.notifyUser(receiverID, websocket.TypeConversationUpdate, input.ConversationID, map[string]interface{}{
		"conversation_id":   input.ConversationID,
		"last_message_text": summary,
		"sender_id":         input.SenderID,
	})

	return msg, nil
}

// senderSnapshot resolves the display name and photo captured on the message.
// The conversation's own snapshots are preferred; the user directory is only
// consulted for senders missing from them, and a directory failure degrades to
// an empty name rather than failing the send.
func (uc *ConversationUseCase) senderSnapshot(ctx context.Context, conv *entity.Conversation, senderID string) (string, string) {
	switch senderID {
	case conv.BuyerID:
		return conv.BuyerName, conv.BuyerPhotoURL
	case conv.SellerID:
		return conv.SellerName, conv.SellerPhotoURL
	}

	user, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		logger.Warn("senderSnapshot: lookup for %s failed: %v", senderID, err)
		return "", ""
	}
	return user.DisplayName, user.PhotoURL
}

// MarkConversationAsRead zeroes the caller's unread counter. Idempotent.
func (uc *ConversationUseCase) MarkConversationAsRead(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return errors.BadRequest("Conversation id and user id are required", nil)
	}

	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.InsufficientPermissions("Not a participant of this conversation", nil)
	}

	return uc.conversationRepo.Patch(ctx, conversationID, repository.ConversationPatch{
		ResetUnread: userID,
	})
}

// MarkAllMessagesAsRead flips the read flag on every message addressed to the
// caller, zeroes the caller's unread counter, and emits a read receipt to the
// other participant.
func (uc *ConversationUseCase) MarkAllMessagesAsRead(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return errors.BadRequest("Conversation id and user id are required", nil)
	}

	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.InsufficientPermissions("Not a participant of this conversation", nil)
	}

	if err := uc.messageRepo.MarkReadBatch(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := uc.conversationRepo.Patch(ctx, conversationID, repository.ConversationPatch{ResetUnread: userID}); err != nil {
		return err
	}

	uc.broadcastToRoom(conversationID, websocket.TypeReadReceipt, websocket.ReadReceiptData{
		ConversationID: conversationID,
		ReaderID:       userID,
	}, userID)

	return nil
}

// GetConversations lists the caller's conversations ordered by most recent
// activity.
func (uc *ConversationUseCase) GetConversations(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	if userID == "" {
		return nil, 0, errors.BadRequest("User id is required", nil)
	}
	return uc.conversationRepo.ListByParticipant(ctx, userID, limit, offset)
}

// GetConversationByID returns one conversation after a membership check.
func (uc *ConversationUseCase) GetConversationByID(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.InsufficientPermissions("Not a participant of this conversation", nil)
	}
	return conv, nil
}

// GetMessages pages through a conversation's history, newest first.
func (uc *ConversationUseCase) GetMessages(ctx context.Context, conversationID, userID string, limit, offset int) ([]*entity.Message, int64, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if !conv.HasParticipant(userID) {
		return nil, 0, errors.InsufficientPermissions("Not a participant of this conversation", nil)
	}
	return uc.messageRepo.ListByConversation(ctx, conversationID, limit, offset)
}

// SubscribeConversations opens a live feed of the caller's conversation list.
// The caller owns the returned handle and must Cancel it.
func (uc *ConversationUseCase) SubscribeConversations(ctx context.Context, userID string) (*repository.ConversationSubscription, error) {
	if userID == "" {
		return nil, errors.BadRequest("User id is required", nil)
	}
	return uc.conversationRepo.SubscribeByParticipant(ctx, userID)
}

// SubscribeMessages opens a live feed of the most recent message window for a
// conversation the caller participates in.
func (uc *ConversationUseCase) SubscribeMessages(ctx context.Context, conversationID, userID string) (*repository.MessageSubscription, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errors.InsufficientPermissions("Not a participant of this conversation", nil)
	}
	return uc.messageRepo.Subscribe(ctx, conversationID, uc.messageWindow)
}

// HandleTypingEvent relays a typing indicator to the other room members.
func (uc *ConversationUseCase) HandleTypingEvent(ctx context.Context, conversationID, userID string, isTyping bool) error {
	if allowed, _ := uc.rateLimiter.Allow(userID, "typing"); !allowed {
		return nil // silently dropped, indicators are best-effort
	}

	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return errors.InsufficientPermissions("Not a participant of this conversation", nil)
	}

	uc.broadcastToRoom(conversationID, websocket.TypeTypingIndicator, websocket.TypingData{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	}, userID)

	return nil
}

func (uc *ConversationUseCase) notifyUser(userID, frameType, conversationID string, data interface{}) {
	if uc.wsManager == nil {
		return
	}
	payload, err := json.Marshal(websocket.Frame{
		Type:           frameType,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("notifyUser: marshal %s frame failed: %v", frameType, err)
		return
	}
	uc.wsManager.SendToUser(userID, payload)
}

func (uc *ConversationUseCase) broadcastToRoom(conversationID, frameType string, data interface{}, exceptUserID string) {
	if uc.wsManager == nil {
		return
	}
	payload, err := json.Marshal(websocket.Frame{
		Type:           frameType,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("broadcastToRoom: marshal %s frame failed: %v", frameType, err)
		return
	}
	uc.wsManager.SendToRoom(conversationID, payload, exceptUserID)
}
