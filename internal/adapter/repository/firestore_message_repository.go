package repository

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"swapmeet/internal/domain/entity"
	"swapmeet/internal/domain/repository"
	"swapmeet/pkg/errors"
	"swapmeet/pkg/logger"
)

const messagesCollection = "messages"

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

// AppendAndPatchConversation runs the message create and the summary patch in
// one transaction, so neither half is ever visible without the other. The
// message timestamp is filled in by the server at commit time.
func (r *firestoreMessageRepository) AppendAndPatchConversation(ctx context.Context, msg *entity.Message, patch repository.ConversationPatch) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	convRef := r.client.Collection(conversationsCollection).Doc(msg.ConversationID)
	msgRef := convRef.Collection(messagesCollection).Doc(msg.ID)
	updates := conversationUpdates(patch)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(convRef); err != nil {
			return err
		}
		if err := tx.Create(msgRef, msg); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Update(convRef, updates)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.ConversationNotFound("Conversation not found", err)
		}
		logger.Error("AppendAndPatchConversation: transaction for conversation %s failed: %v", msg.ConversationID, err)
		return mapStoreError("Failed to append message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) Subscribe(ctx context.Context, conversationID string, limit int) (*repository.MessageSubscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	// Descending with a limit gives the most recent window; the decoded
	// snapshot is re-sorted ascending so subscribers always see send order.
	iter := r.client.Collection(conversationsCollection).Doc(conversationID).
		Collection(messagesCollection).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Snapshots(ctx)

	updates := make(chan []*entity.Message, 1)
	sub := repository.NewMessageSubscription(updates, func() {
		cancel()
		iter.Stop()
	})

	go func() {
		defer close(updates)
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				logger.Error("Subscribe: message stream for conversation %s failed: %v", conversationID, err)
				sub.Fail(errors.Network("Message stream failed", err))
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				sub.Fail(errors.Network("Message stream failed", err))
				return
			}

			msgs := make([]*entity.Message, 0, len(docs))
			for _, doc := range docs {
				var msg entity.Message
				if err := doc.DataTo(&msg); err != nil {
					logger.Warn("Subscribe: skipping malformed message %s: %v", doc.Ref.ID, err)
					continue
				}
				msgs = append(msgs, &msg)
			}
			sortMessagesAscending(msgs)

			deliver(ctx, updates, msgs)
		}
	}()

	return sub, nil
}

func (r *firestoreMessageRepository) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.client.Collection(conversationsCollection).Doc(conversationID).
		Collection(messagesCollection).
		OrderBy("timestamp", firestore.Desc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("ListByConversation: failed to count messages for conversation %s: %v", conversationID, err)
		return nil, 0, mapStoreError("Failed to count messages", err)
	}
	total := int64(len(countDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("ListByConversation: failed to iterate messages for conversation %s: %v", conversationID, err)
			return nil, 0, mapStoreError("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, 0, errors.OperationFailed("Failed to parse message data", err)
		}

		messages = append(messages, &message)
	}

	return messages, total, nil
}

// sortMessagesAscending orders a decoded window oldest first. Messages whose
// server timestamp is still pending (zero) sort last: they are the newest
// writes, not yet committed.
func sortMessagesAscending(msgs []*entity.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ti, tj := msgs[i].Timestamp, msgs[j].Timestamp
		if ti.IsZero() {
			return false
		}
		if tj.IsZero() {
			return true
		}
		return ti.Before(tj)
	})
}

// MarkReadBatch flips every unread message addressed to receiverID inside a
// transaction: re-running it is a no-op and a crash mid-way leaves no
// half-flipped batch behind.
func (r *firestoreMessageRepository) MarkReadBatch(ctx context.Context, conversationID, receiverID string) error {
	query := r.client.Collection(conversationsCollection).Doc(conversationID).
		Collection(messagesCollection).
		Where("receiverId", "==", receiverID).
		Where("isRead", "==", false)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := tx.Update(doc.Ref, []firestore.Update{{Path: "isRead", Value: true}}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("MarkReadBatch: transaction for conversation %s failed: %v", conversationID, err)
		return mapStoreError("Failed to mark messages as read", err)
	}

	return nil
}
