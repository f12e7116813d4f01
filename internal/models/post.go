package models

import "time"

// MaxPostTextBytes is the largest post body accepted, measured in UTF-8 bytes.
const MaxPostTextBytes = 1024 * 1024

// Post is a short text entry owned by exactly one user.
type Post struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
