package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"swapmeet/internal/domain/entity"
	"swapmeet/internal/domain/repository"
	"swapmeet/pkg/errors"
	"swapmeet/pkg/logger"
)

const conversationsCollection = "conversations"

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection(conversationsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.ConversationNotFound("Conversation not found", err)
		}
		return nil, mapStoreError("Failed to get conversation", err)
	}

	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.OperationFailed("Failed to parse conversation data", err)
	}

	return &conv, nil
}

// CreateIfAbsent relies on the store's conditional write: Create fails with
// AlreadyExists when the document is present, so exactly one of two racing
// callers performs the write and the loser reads back the winner's record.
func (r *firestoreConversationRepository) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	conv.CreatedAt = time.Now()

	_, err := r.client.Collection(conversationsCollection).Doc(conv.ID).Create(ctx, conv)
	if err == nil {
		return conv, true, nil
	}

	if status.Code(err) == codes.AlreadyExists {
		logger.Debug("CreateIfAbsent: conversation %s already exists, reusing", conv.ID)
		existing, getErr := r.GetByID(ctx, conv.ID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}

	return nil, false, mapStoreError("Failed to create conversation", err)
}

func (r *firestoreConversationRepository) Patch(ctx context.Context, id string, patch repository.ConversationPatch) error {
	if patch.IsZero() {
		return nil
	}

	_, err := r.client.Collection(conversationsCollection).Doc(id).Update(ctx, conversationUpdates(patch))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.ConversationNotFound("Conversation not found", err)
		}
		return mapStoreError("Failed to patch conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) ListByParticipant(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	query := r.client.Collection(conversationsCollection).Where("participantIds", "array-contains", userID)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("ListByParticipant: failed to fetch conversations for user %s: %v", userID, err)
		return nil, 0, mapStoreError("Failed to fetch conversations", err)
	}

	all := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		var conv entity.Conversation
		if err := doc.DataTo(&conv); err != nil {
			logger.Warn("ListByParticipant: skipping malformed conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		all = append(all, &conv)
	}

	sortByActivity(all)
	total := int64(len(all))

	start := offset
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	return all[start:end], total, nil
}

func (r *firestoreConversationRepository) SubscribeByParticipant(ctx context.Context, userID string) (*repository.ConversationSubscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	iter := r.client.Collection(conversationsCollection).
		Where("participantIds", "array-contains", userID).
		Snapshots(ctx)

	updates := make(chan []*entity.Conversation, 1)
	sub := repository.NewConversationSubscription(updates, func() {
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
				logger.Error("SubscribeByParticipant: stream for user %s failed: %v", userID, err)
				sub.Fail(errors.Network("Conversation stream failed", err))
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				sub.Fail(errors.Network("Conversation stream failed", err))
				return
			}

			convs := make([]*entity.Conversation, 0, len(docs))
			for _, doc := range docs {
				var conv entity.Conversation
				if err := doc.DataTo(&conv); err != nil {
					logger.Warn("SubscribeByParticipant: skipping malformed conversation %s: %v", doc.Ref.ID, err)
					continue
				}
				convs = append(convs, &conv)
			}
			sortByActivity(convs)

			deliver(ctx, updates, convs)
		}
	}()

	return sub, nil
}

// sortByActivity orders conversations by most recent message first;
// conversations that never had a message sort last.
func sortByActivity(convs []*entity.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		ti, tj := convs[i].LastMessageTimestamp, convs[j].LastMessageTimestamp
		if ti.IsZero() {
			return false
		}
		if tj.IsZero() {
			return true
		}
		return ti.After(tj)
	})
}

// conversationUpdates translates a patch into the store's atomic update
// primitives. Counter fields are addressed by FieldPath so participant ids
// containing dots cannot corrupt the path.
func conversationUpdates(patch repository.ConversationPatch) []firestore.Update {
	var updates []firestore.Update

	if patch.LastMessageText != nil {
		updates = append(updates, firestore.Update{Path: "lastMessageText", Value: *patch.LastMessageText})
	}
	if patch.LastMessageSenderID != nil {
		updates = append(updates, firestore.Update{Path: "lastMessageSenderId", Value: *patch.LastMessageSenderID})
	}
	if patch.TouchLastMessageAt {
		updates = append(updates, firestore.Update{Path: "lastMessageTimestamp", Value: firestore.ServerTimestamp})
	}
	if patch.IncrementUnread != "" {
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{"unreadCount", patch.IncrementUnread},
			Value:     firestore.Increment(1),
		})
	}
	if patch.ResetUnread != "" {
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{"unreadCount", patch.ResetUnread},
			Value:     0,
		})
	}

	return updates
}

// deliver hands the latest snapshot to the subscriber, replacing a pending
// undelivered one so a slow consumer only ever lags by a single snapshot.
func deliver[T any](ctx context.Context, updates chan []T, snapshot []T) {
	for {
		select {
		case updates <- snapshot:
			return
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
	}
}

func mapStoreError(message string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return errors.Network(message, err)
	default:
		return errors.OperationFailed(message, err)
	}
}
