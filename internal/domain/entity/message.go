package entity

import "time"

// Message is append-only: after creation only IsRead may change, and only
// from false to true.
type Message struct {
	ID             string `json:"id" firestore:"id"`
	ConversationID string `json:"conversation_id" firestore:"conversationId"`

	SenderID       string `json:"sender_id" firestore:"senderId"`
	SenderName     string `json:"sender_name" firestore:"senderName"`
	SenderPhotoURL string `json:"sender_photo_url,omitempty" firestore:"senderPhotoUrl,omitempty"`
	ReceiverID     string `json:"receiver_id" firestore:"receiverId"`

	Text     string `json:"text,omitempty" firestore:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`

	// Timestamp is assigned by the store on append; a zero value here becomes
	// the server time, which is what orders messages across devices.
	Timestamp time.Time `json:"timestamp" firestore:"timestamp,serverTimestamp"`

	IsRead bool `json:"is_read" firestore:"isRead"`
}
