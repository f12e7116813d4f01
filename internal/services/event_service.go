package services

import (
	"context"
	"fmt"

	"github.com/isdelr/postkeep-be/internal/models"
	"github.com/isdelr/postkeep-be/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultEventLimit is used when a caller asks for a non-positive limit.
const DefaultEventLimit = 20

// MaxEventLimit caps how many events one request may read.
const MaxEventLimit = 100

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	RecordEvent(ctx context.Context, ownerID, eventType, message string)
	GetRecentEvents(ctx context.Context, token string, limit int) ([]models.Event, error)
}

// EventService records and lists the per-user activity log.
type EventService struct {
	tokens TokenResolver
	users  IdentityStore
	store  storage.EventStore
}

// NewEventService creates a new EventService.
func NewEventService(tokens TokenResolver, users IdentityStore, store storage.EventStore) *EventService {
	return &EventService{tokens: tokens, users: users, store: store}
}

// RecordEvent appends an event for ownerID. Failures are logged only; the
// activity log never fails the operation that produced it.
func (s *EventService) RecordEvent(ctx context.Context, ownerID, eventType, message string) {
	event := models.Event{OwnerID: ownerID, Type: eventType, Message: message}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID).Str("type", eventType).Msg("Failed to record event")
	}
}

// GetRecentEvents returns the caller's most recent events, newest first.
func (s *EventService) GetRecentEvents(ctx context.Context, token string, limit int) ([]models.Event, error) {
	ownerID, err := resolveOwner(ctx, s.tokens, s.users, token)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}

	events, err := s.store.ListRecentEvents(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w: %w", ErrStorage, err)
	}
	return events, nil
}
