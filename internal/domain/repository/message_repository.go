package repository

import (
	"context"

	"swapmeet/internal/domain/entity"
)

type MessageRepository interface {
	// AppendAndPatchConversation appends msg to its conversation and applies
	// patch to the parent summary as one atomic unit: no observer may see the
	// message without the summary update or vice versa.
	AppendAndPatchConversation(ctx context.Context, msg *entity.Message, patch ConversationPatch) error

	// Subscribe yields the window of the limit most recent messages, ascending
	// by server timestamp, and re-yields it on every append or read-flag flip.
	Subscribe(ctx context.Context, conversationID string, limit int) (*MessageSubscription, error)

	// ListByConversation pages through message history, newest first.
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error)

	// MarkReadBatch flips isRead on every unread message addressed to
	// receiverID. A no-op success when none match; idempotent.
	MarkReadBatch(ctx context.Context, conversationID, receiverID string) error
}
