package repository

import (
	"context"

	"swapmeet/internal/domain/entity"
)

// ConversationPatch is a partial update to a conversation summary. Counter
// mutations go through the store's atomic primitives, never through a
// read-modify-write of a client-held copy.
type ConversationPatch struct {
	LastMessageText     *string
	LastMessageSenderID *string

	// TouchLastMessageAt sets lastMessageTimestamp to the store's current time.
	TouchLastMessageAt bool

	// IncrementUnread names the participant whose unread counter grows by one.
	IncrementUnread string

	// ResetUnread names the participant whose unread counter is set to zero.
	ResetUnread string
}

// IsZero reports whether the patch carries no updates.
func (p ConversationPatch) IsZero() bool {
	return p.LastMessageText == nil && p.LastMessageSenderID == nil &&
		!p.TouchLastMessageAt && p.IncrementUnread == "" && p.ResetUnread == ""
}

type ConversationRepository interface {
	// GetByID returns CONVERSATION_NOT_FOUND when the id does not exist;
	// absence is an expected condition, not a fault.
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)

	// CreateIfAbsent persists conv unless a conversation with the same id
	// already exists, in which case the stored record is returned unchanged.
	// Safe under concurrent invocation: exactly one create wins. The returned
	// bool is true when this call performed the create.
	CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error)

	// Patch applies a partial update atomically with respect to concurrent
	// patches on the same conversation.
	Patch(ctx context.Context, id string, patch ConversationPatch) error

	// ListByParticipant returns the user's conversations ordered by most
	// recent activity, never-messaged conversations last.
	ListByParticipant(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error)

	// SubscribeByParticipant yields a fresh ordered snapshot of the user's
	// conversations every time any of them changes.
	SubscribeByParticipant(ctx context.Context, userID string) (*ConversationSubscription, error)
}
