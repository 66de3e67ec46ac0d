package repository

import (
	"sync"

	"swapmeet/internal/domain/entity"
)

// ConversationSubscription is a live, cancelable stream of ordered
// conversation-list snapshots. Updates() closes after Cancel or after a
// terminal stream failure; Err() is non-nil only in the failure case.
// Cancel is idempotent and never mutates stored data.
type ConversationSubscription struct {
	updates <-chan []*entity.Conversation
	stop    func()
	once    sync.Once
	mu      sync.Mutex
	err     error
}

func NewConversationSubscription(updates <-chan []*entity.Conversation, stop func()) *ConversationSubscription {
	return &ConversationSubscription{updates: updates, stop: stop}
}

func (s *ConversationSubscription) Updates() <-chan []*entity.Conversation {
	return s.updates
}

func (s *ConversationSubscription) Cancel() {
	s.once.Do(s.stop)
}

// Fail records the terminal error. Called by the producing goroutine before
// it closes the updates channel.
func (s *ConversationSubscription) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *ConversationSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// MessageSubscription is the message-window counterpart of
// ConversationSubscription, with identical lifecycle rules.
type MessageSubscription struct {
	updates <-chan []*entity.Message
	stop    func()
	once    sync.Once
	mu      sync.Mutex
	err     error
}

func NewMessageSubscription(updates <-chan []*entity.Message, stop func()) *MessageSubscription {
	return &MessageSubscription{updates: updates, stop: stop}
}

func (s *MessageSubscription) Updates() <-chan []*entity.Message {
	return s.updates
}

func (s *MessageSubscription) Cancel() {
	s.once.Do(s.stop)
}

func (s *MessageSubscription) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *MessageSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
