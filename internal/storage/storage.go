// Package storage defines the persistence contracts shared by every backend.
package storage

import (
	"context"
	"errors"

	"github.com/isdelr/postkeep-be/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("record already exists")
)

// UserStore persists user identities and password hashes.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// PostStore persists posts keyed by id, each owned by one user.
type PostStore interface {
	InsertPost(ctx context.Context, ownerID, text string) (models.Post, error)
	// ListPostsByOwner returns the owner's posts oldest first.
	ListPostsByOwner(ctx context.Context, ownerID string) ([]models.Post, error)
	// DeletePostIfOwner removes the post only when ownerID matches and
	// reports whether a row was removed.
	DeletePostIfOwner(ctx context.Context, postID, ownerID string) (bool, error)
}

// EventStore persists the per-user activity log.
type EventStore interface {
	InsertEvent(ctx context.Context, event models.Event) error
	ListRecentEvents(ctx context.Context, ownerID string, limit int) ([]models.Event, error)
}

// Store is implemented by every backend.
type Store interface {
	UserStore
	PostStore
	EventStore
	Ping(ctx context.Context) error
	Close() error
}
