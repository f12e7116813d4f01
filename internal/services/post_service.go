package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/isdelr/postkeep-be/internal/cache"
	"github.com/isdelr/postkeep-be/internal/models"
	"github.com/isdelr/postkeep-be/internal/storage"
	"github.com/rs/zerolog/log"
)

// TokenResolver maps a bearer token to the user id it was issued for.
// It is the only place tokens are interpreted.
type TokenResolver interface {
	Resolve(token string) (string, error)
}

// IdentityStore confirms that a token's subject is still a known user.
type IdentityStore interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// PostListCache memoizes per-owner post lists.
type PostListCache interface {
	Get(ctx context.Context, ownerID string, fetch cache.FetchFunc) ([]models.Post, error)
	Invalidate(ctx context.Context, ownerID string)
}

// PostNotifier pushes post changes to the owner's live connections.
type PostNotifier interface {
	NotifyOwner(ownerID, action string, payload interface{})
}

// Live update actions.
const (
	ActionPostCreated = "post.created"
	ActionPostDeleted = "post.deleted"
)

// PostServiceProvider defines the interface for post services.
type PostServiceProvider interface {
	CreatePost(ctx context.Context, token, text string) (string, error)
	ListPosts(ctx context.Context, token string) ([]models.Post, error)
	DeletePost(ctx context.Context, token, postID string) error
}

// PostService mediates every post read and write through the identity the
// presented token resolves to.
type PostService struct {
	tokens       TokenResolver
	users        IdentityStore
	posts        storage.PostStore
	cache        PostListCache
	eventService EventServiceProvider
	notifier     PostNotifier
	strictDelete bool
}

// NewPostService creates a new PostService. users confirms that token
// subjects exist; eventService and notifier may be nil. With strictDelete set, deleting a post that is missing or owned by
// someone else returns ErrNotFound instead of succeeding silently.
func NewPostService(tokens TokenResolver, users IdentityStore, posts storage.PostStore, listCache PostListCache, eventService EventServiceProvider, notifier PostNotifier, strictDelete bool) *PostService {
	if listCache == nil {
		listCache = cache.Noop{}
	}
	return &PostService{
		tokens:       tokens,
		users:        users,
		posts:        posts,
		cache:        listCache,
		eventService: eventService,
		notifier:     notifier,
		strictDelete: strictDelete,
	}
}

// CreatePost stores text as a new post owned by the token's user and returns
// its id. The owner's cached list is dropped before returning so the next
// list includes the new post.
func (s *PostService) CreatePost(ctx context.Context, token, text string) (string, error) {
	ownerID, err := resolveOwner(ctx, s.tokens, s.users, token)
	if err != nil {
		return "", err
	}
	if size := len(text); size > models.MaxPostTextBytes {
		return "", fmt.Errorf("%w: post text is %d bytes, limit is %d", ErrValidation, size, models.MaxPostTextBytes)
	}

	post, err := s.posts.InsertPost(ctx, ownerID, text)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("Failed to insert post")
		return "", fmt.Errorf("create post: %w: %w", ErrStorage, err)
	}
	s.cache.Invalidate(ctx, ownerID)

	log.Info().Str("owner_id", ownerID).Str("post_id", post.ID).Int("bytes", len(text)).Msg("Post created")
	if s.eventService != nil {
		s.eventService.RecordEvent(ctx, ownerID, models.EventPostCreate, fmt.Sprintf("Post %s created.", post.ID))
	}
	if s.notifier != nil {
		s.notifier.NotifyOwner(ownerID, ActionPostCreated, post)
	}
	return post.ID, nil
}

// ListPosts returns every post owned by the token's user, oldest first.
func (s *PostService) ListPosts(ctx context.Context, token string) ([]models.Post, error) {
	ownerID, err := resolveOwner(ctx, s.tokens, s.users, token)
	if err != nil {
		return nil, err
	}

	posts, err := s.cache.Get(ctx, ownerID, func(ctx context.Context) ([]models.Post, error) {
		return s.posts.ListPostsByOwner(ctx, ownerID)
	})
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("Failed to list posts")
		return nil, fmt.Errorf("list posts: %w: %w", ErrStorage, err)
	}
	return posts, nil
}

// DeletePost removes postID if the token's user owns it. A post that does
// not exist or belongs to someone else is left alone and, unless strict
// delete is enabled, the call still succeeds.
func (s *PostService) DeletePost(ctx context.Context, token, postID string) error {
	ownerID, err := resolveOwner(ctx, s.tokens, s.users, token)
	if err != nil {
		return err
	}

	deleted, err := s.posts.DeletePostIfOwner(ctx, postID, ownerID)
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Str("post_id", postID).Msg("Failed to delete post")
		return fmt.Errorf("delete post: %w: %w", ErrStorage, err)
	}
	if !deleted {
		log.Debug().Str("owner_id", ownerID).Str("post_id", postID).Msg("Delete matched no owned post")
		if s.strictDelete {
			return fmt.Errorf("post %s: %w", postID, ErrNotFound)
		}
		return nil
	}
	s.cache.Invalidate(ctx, ownerID)

	log.Info().Str("owner_id", ownerID).Str("post_id", postID).Msg("Post deleted")
	if s.eventService != nil {
		s.eventService.RecordEvent(ctx, ownerID, models.EventPostDelete, fmt.Sprintf("Post %s deleted.", postID))
	}
	if s.notifier != nil {
		s.notifier.NotifyOwner(ownerID, ActionPostDeleted, map[string]string{"id": postID})
	}
	return nil
}

// resolveSubject maps a token to its subject without consulting storage.
func resolveSubject(tokens TokenResolver, token string) (string, error) {
	subject, err := tokens.Resolve(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if subject == "" {
		return "", ErrUnauthorized
	}
	return subject, nil
}

// resolveOwner resolves token and confirms its subject is an existing user,
// so a validly signed token for a deleted or unknown user is rejected before
// any post or event is read or written.
func resolveOwner(ctx context.Context, tokens TokenResolver, users IdentityStore, token string) (string, error) {
	ownerID, err := resolveSubject(tokens, token)
	if err != nil {
		return "", err
	}
	if _, err := users.GetUserByID(ctx, ownerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("user %s no longer exists: %w", ownerID, ErrUnauthorized)
		}
		return "", fmt.Errorf("look up user: %w: %w", ErrStorage, err)
	}
	return ownerID, nil
}
