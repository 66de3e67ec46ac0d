package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapmeet/internal/domain/entity"
	"swapmeet/internal/domain/repository"
	"swapmeet/pkg/errors"
)

type fakeConversationRepo struct {
	mu    sync.Mutex
	convs map[string]*entity.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{convs: make(map[string]*entity.Conversation)}
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, errors.ConversationNotFound("Conversation not found", nil)
	}
	return conv, nil
}

func (r *fakeConversationRepo) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.convs[conv.ID]; ok {
		return existing, false, nil
	}
	r.convs[conv.ID] = conv
	return conv, true, nil
}

func (r *fakeConversationRepo) Patch(ctx context.Context, id string, patch repository.ConversationPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyPatchLocked(id, patch)
}

func (r *fakeConversationRepo) applyPatchLocked(id string, patch repository.ConversationPatch) error {
	conv, ok := r.convs[id]
	if !ok {
		return errors.ConversationNotFound("Conversation not found", nil)
	}
	if patch.LastMessageText != nil {
		conv.LastMessageText = *patch.LastMessageText
	}
	if patch.LastMessageSenderID != nil {
		conv.LastMessageSenderID = *patch.LastMessageSenderID
	}
	if patch.TouchLastMessageAt {
		conv.LastMessageTimestamp = time.Now()
	}
	if patch.IncrementUnread != "" {
		conv.UnreadCount[patch.IncrementUnread]++
	}
	if patch.ResetUnread != "" {
		conv.UnreadCount[patch.ResetUnread] = 0
	}
	return nil
}

func (r *fakeConversationRepo) ListByParticipant(ctx context.Context, userID string, limit, offset int) ([]*entity.Conversation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Conversation
	for _, conv := range r.convs {
		if conv.HasParticipant(userID) {
			out = append(out, conv)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeConversationRepo) SubscribeByParticipant(ctx context.Context, userID string) (*repository.ConversationSubscription, error) {
	updates := make(chan []*entity.Conversation, 1)
	return repository.NewConversationSubscription(updates, func() { close(updates) }), nil
}

type fakeMessageRepo struct {
	convRepo *fakeConversationRepo
	mu       sync.Mutex
	messages map[string][]*entity.Message
	failNext error
	seq      int
}

func newFakeMessageRepo(convRepo *fakeConversationRepo) *fakeMessageRepo {
	return &fakeMessageRepo{convRepo: convRepo, messages: make(map[string][]*entity.Message)}
}

func (r *fakeMessageRepo) AppendAndPatchConversation(ctx context.Context, msg *entity.Message, patch repository.ConversationPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}

	r.convRepo.mu.Lock()
	defer r.convRepo.mu.Unlock()
	if _, ok := r.convRepo.convs[msg.ConversationID]; !ok {
		return errors.ConversationNotFound("Conversation not found", nil)
	}

	if msg.ID == "" {
		r.seq++
		msg.ID = fmt.Sprintf("msg-%d", r.seq)
	}
	msg.Timestamp = time.Now()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
	return r.convRepo.applyPatchLocked(msg.ConversationID, patch)
}

func (r *fakeMessageRepo) Subscribe(ctx context.Context, conversationID string, limit int) (*repository.MessageSubscription, error) {
	updates := make(chan []*entity.Message, 1)
	return repository.NewMessageSubscription(updates, func() { close(updates) }), nil
}

func (r *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[conversationID]
	return msgs, int64(len(msgs)), nil
}

func (r *fakeMessageRepo) MarkReadBatch(ctx context.Context, conversationID, receiverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages[conversationID] {
		if msg.ReceiverID == receiverID {
			msg.IsRead = true
		}
	}
	return nil
}

type fakeUserRepo struct {
	users map[string]*entity.User
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, errors.OperationFailed("User not found", nil)
	}
	return user, nil
}

type fakeItemRepo struct {
	items map[string]*entity.Item
}

func (r *fakeItemRepo) GetByID(ctx context.Context, id string) (*entity.Item, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, errors.OperationFailed("Item not found", nil)
	}
	return item, nil
}

type fixture struct {
	uc       *ConversationUseCase
	convRepo *fakeConversationRepo
	msgRepo  *fakeMessageRepo
}

func newFixture() *fixture {
	convRepo := newFakeConversationRepo()
	msgRepo := newFakeMessageRepo(convRepo)
	userRepo := &fakeUserRepo{users: map[string]*entity.User{
		"buyer-1":  {ID: "buyer-1", DisplayName: "Blake", PhotoURL: "https://img.example/blake.png"},
		"seller-1": {ID: "seller-1", DisplayName: "Sam", PhotoURL: "https://img.example/sam.png"},
	}}
	itemRepo := &fakeItemRepo{items: map[string]*entity.Item{
		"car42": {ID: "car42", OwnerID: "seller-1", Label: "1998 hatchback", ImageURL: "https://img.example/car42.jpg"},
	}}

	return &fixture{
		uc:       NewConversationUseCase(convRepo, msgRepo, userRepo, itemRepo, nil, 50),
		convRepo: convRepo,
		msgRepo:  msgRepo,
	}
}

func TestCreateOrGetConversationIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv1, created1, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)
	assert.True(t, created1)

	conv2, created2, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, conv1.ID, conv2.ID)
	assert.Len(t, f.convRepo.convs, 1)
}

func TestCreateOrGetConversationCommutative(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv1, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	// The seller opening the same chat from their side lands on the same record.
	conv2, created, err := f.uc.CreateOrGetConversation(ctx, "seller-1", "buyer-1", "car42")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv1.ID, conv2.ID)
}

func TestCreateOrGetConversationConcurrent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan bool, 4)
	callers := [][2]string{
		{"buyer-1", "seller-1"},
		{"seller-1", "buyer-1"},
		{"buyer-1", "seller-1"},
		{"seller-1", "buyer-1"},
	}

	for _, pair := range callers {
		wg.Add(1)
		go func(requester, other string) {
			defer wg.Done()
			_, created, err := f.uc.CreateOrGetConversation(ctx, requester, other, "car42")
			assert.NoError(t, err)
			results <- created
		}(pair[0], pair[1])
	}
	wg.Wait()
	close(results)

	wins := 0
	for created := range results {
		if created {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one caller should create the conversation")
	assert.Len(t, f.convRepo.convs, 1)
}

func TestCreateConversationAssignsRoles(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	assert.Equal(t, "buyer-1", conv.BuyerID)
	assert.Equal(t, "seller-1", conv.SellerID)
	assert.Equal(t, "Blake", conv.BuyerName)
	assert.Equal(t, "Sam", conv.SellerName)
	assert.Equal(t, "1998 hatchback", conv.ItemLabel)
	assert.Equal(t, map[string]int{"buyer-1": 0, "seller-1": 0}, conv.UnreadCount)
}

func TestCreateConversationSellerInitiated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// The item owner reaching out first is still recorded as the seller.
	conv, _, err := f.uc.CreateOrGetConversation(ctx, "seller-1", "buyer-1", "car42")
	require.NoError(t, err)

	assert.Equal(t, "buyer-1", conv.BuyerID)
	assert.Equal(t, "seller-1", conv.SellerID)
}

func TestCreateConversationWithSelfRejected(t *testing.T) {
	f := newFixture()

	_, _, err := f.uc.CreateOrGetConversation(context.Background(), "buyer-1", "buyer-1", "car42")
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestCreateConversationNeitherOwnsItem(t *testing.T) {
	f := newFixture()

	_, _, err := f.uc.CreateOrGetConversation(context.Background(), "buyer-1", "stranger-9", "car42")
	assert.True(t, errors.Is(err, "OPERATION_FAILED"))
}

func TestSendMessageAtomicEffects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	msg, err := f.uc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "buyer-1",
		Text:           "Is this still available?",
	})
	require.NoError(t, err)

	assert.Equal(t, "seller-1", msg.ReceiverID)
	assert.Equal(t, "Blake", msg.SenderName)
	assert.False(t, msg.IsRead)

	stored := f.convRepo.convs[conv.ID]
	assert.Equal(t, "Is this still available?", stored.LastMessageText)
	assert.Equal(t, "buyer-1", stored.LastMessageSenderID)
	assert.False(t, stored.LastMessageTimestamp.IsZero())
	assert.Equal(t, 0, stored.UnreadCount["buyer-1"])
	assert.Equal(t, 1, stored.UnreadCount["seller-1"])
	assert.Len(t, f.msgRepo.messages[conv.ID], 1)
}

func TestSendMessageEmptyRejectedWithoutMutation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "buyer-1",
		Text:           "   \n\t ",
	})
	assert.True(t, errors.Is(err, "MESSAGE_SEND_ERROR"))

	stored := f.convRepo.convs[conv.ID]
	assert.Empty(t, stored.LastMessageText)
	assert.Equal(t, 0, stored.UnreadCount["seller-1"])
	assert.Empty(t, f.msgRepo.messages[conv.ID])
}

func TestSendMessageImagePlaceholderSummary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	msg, err := f.uc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "buyer-1",
		ImageURL:       "https://img.example/photo.jpg",
	})
	require.NoError(t, err)

	assert.Empty(t, msg.Text)
	assert.Equal(t, "Image", f.convRepo.convs[conv.ID].LastMessageText)
}

func TestSendMessageNonParticipantForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "stranger-9",
		Text:           "hello",
	})
	assert.True(t, errors.Is(err, "INSUFFICIENT_PERMISSIONS"))
	assert.Empty(t, f.msgRepo.messages[conv.ID])
}

func TestSendMessageAppendFailurePropagates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	f.msgRepo.failNext = errors.OperationFailed("commit contention", nil)
	_, err = f.uc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "buyer-1",
		Text:           "hello",
	})
	assert.True(t, errors.Is(err, "MESSAGE_SEND_ERROR"))
	assert.Empty(t, f.msgRepo.messages[conv.ID])
	assert.Equal(t, 0, f.convRepo.convs[conv.ID].UnreadCount["seller-1"])
}

func TestMarkConversationAsRead(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.uc.SendMessage(ctx, SendMessageInput{
			ConversationID: conv.ID,
			SenderID:       "buyer-1",
			Text:           fmt.Sprintf("ping %d", i),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.convRepo.convs[conv.ID].UnreadCount["seller-1"])

	require.NoError(t, f.uc.MarkConversationAsRead(ctx, conv.ID, "seller-1"))
	assert.Equal(t, 0, f.convRepo.convs[conv.ID].UnreadCount["seller-1"])

	// Re-reading an already-read conversation stays at zero.
	require.NoError(t, f.uc.MarkConversationAsRead(ctx, conv.ID, "seller-1"))
	assert.Equal(t, 0, f.convRepo.convs[conv.ID].UnreadCount["seller-1"])
}

func TestMarkConversationAsReadNonParticipant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	err = f.uc.MarkConversationAsRead(ctx, conv.ID, "stranger-9")
	assert.True(t, errors.Is(err, "INSUFFICIENT_PERMISSIONS"))
}

func TestMarkAllMessagesAsRead(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "buyer-1", Text: "one"})
	require.NoError(t, err)
	_, err = f.uc.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "seller-1", Text: "two"})
	require.NoError(t, err)

	require.NoError(t, f.uc.MarkAllMessagesAsRead(ctx, conv.ID, "seller-1"))

	for _, msg := range f.msgRepo.messages[conv.ID] {
		if msg.ReceiverID == "seller-1" {
			assert.True(t, msg.IsRead)
		} else {
			assert.False(t, msg.IsRead, "the buyer's inbound copy is untouched")
		}
	}
	assert.Equal(t, 0, f.convRepo.convs[conv.ID].UnreadCount["seller-1"])
}

func TestGetMessagesMembershipEnforced(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	_, _, err = f.uc.GetMessages(ctx, conv.ID, "stranger-9", 20, 0)
	assert.True(t, errors.Is(err, "INSUFFICIENT_PERMISSIONS"))

	_, total, err := f.uc.GetMessages(ctx, conv.ID, "buyer-1", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestSubscribeMessagesMembershipEnforced(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)

	_, err = f.uc.SubscribeMessages(ctx, conv.ID, "stranger-9")
	assert.True(t, errors.Is(err, "INSUFFICIENT_PERMISSIONS"))

	sub, err := f.uc.SubscribeMessages(ctx, conv.ID, "buyer-1")
	require.NoError(t, err)
	sub.Cancel()
	sub.Cancel() // canceling twice is safe
}

func TestSubscribeMessagesUnknownConversation(t *testing.T) {
	f := newFixture()

	_, err := f.uc.SubscribeMessages(context.Background(), "nope", "buyer-1")
	assert.True(t, errors.Is(err, "CONVERSATION_NOT_FOUND"))
}

func TestMarketplaceInquiryFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, created, err := f.uc.CreateOrGetConversation(ctx, "buyer-1", "seller-1", "car42")
	require.NoError(t, err)
	require.True(t, created)

	_, err = f.uc.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "buyer-1",
		Text:           "¿Sigue disponible?",
	})
	require.NoError(t, err)

	stored := f.convRepo.convs[conv.ID]
	assert.Equal(t, "¿Sigue disponible?", stored.LastMessageText)
	assert.Equal(t, 1, stored.UnreadCount["seller-1"])
	assert.Equal(t, 0, stored.UnreadCount["buyer-1"])

	require.NoError(t, f.uc.MarkAllMessagesAsRead(ctx, conv.ID, "seller-1"))
	assert.Equal(t, 0, stored.UnreadCount["seller-1"])
	assert.True(t, f.msgRepo.messages[conv.ID][0].IsRead)
}
