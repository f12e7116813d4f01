package models

import "time"

// Event types recorded in a user's activity log.
const (
	EventUserSignup = "user.signup"
	EventPostCreate = "post.create"
	EventPostDelete = "post.delete"
)

// Event represents a loggable action taken by a user.
type Event struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Type      string    `json:"type"` // e.g., "post.create", "user.signup"
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
