package entity

import "time"

// User is the read-only view of the user directory that this service
// snapshots names and photos from.
type User struct {
	ID          string    `json:"id" firestore:"id"`
	DisplayName string    `json:"display_name" firestore:"displayName"`
	PhotoURL    string    `json:"photo_url,omitempty" firestore:"photoUrl,omitempty"`
	CreatedAt   time.Time `json:"created_at" firestore:"createdAt"`
}
