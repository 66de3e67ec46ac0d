package entity

import "time"

// Conversation is the summary record for one buyer/seller pair discussing one
// item. Participant and item fields are snapshots taken at creation time and
// are not refreshed when the source records change.
type Conversation struct {
	ID           string `json:"id" firestore:"id"`
	ItemID       string `json:"item_id" firestore:"itemId"`
	ItemLabel    string `json:"item_label" firestore:"itemLabel"`
	ItemImageURL string `json:"item_image_url,omitempty" firestore:"itemImageUrl,omitempty"`

	BuyerID        string `json:"buyer_id" firestore:"buyerId"`
	BuyerName      string `json:"buyer_name" firestore:"buyerName"`
	BuyerPhotoURL  string `json:"buyer_photo_url,omitempty" firestore:"buyerPhotoUrl,omitempty"`
	SellerID       string `json:"seller_id" firestore:"sellerId"`
	SellerName     string `json:"seller_name" firestore:"sellerName"`
	SellerPhotoURL string `json:"seller_photo_url,omitempty" firestore:"sellerPhotoUrl,omitempty"`

	ParticipantIDs []string `json:"participant_ids" firestore:"participantIds"`

	LastMessageText      string    `json:"last_message_text,omitempty" firestore:"lastMessageText,omitempty"`
	LastMessageTimestamp time.Time `json:"last_message_timestamp,omitempty" firestore:"lastMessageTimestamp,omitempty"`
	LastMessageSenderID  string    `json:"last_message_sender_id,omitempty" firestore:"lastMessageSenderId,omitempty"`

	UnreadCount map[string]int `json:"unread_count" firestore:"unreadCount"` // one entry per participant, never negative

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID, or "" when
// userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}
