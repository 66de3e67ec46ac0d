package entity

import "time"

// Item is the read-only view of the listing catalog. OwnerID decides who the
// seller is when a conversation is created about the item.
type Item struct {
	ID        string    `json:"id" firestore:"id"`
	OwnerID   string    `json:"owner_id" firestore:"ownerId"`
	Label     string    `json:"label" firestore:"label"`
	ImageURL  string    `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}
