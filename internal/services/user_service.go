package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/isdelr/postkeep-be/internal/models"
	"github.com/isdelr/postkeep-be/internal/storage"
	"github.com/rs/zerolog/log"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenIssuer issues bearer tokens for a user id.
type TokenIssuer interface {
	Issue(subjectID string) (string, error)
}

// TokenManager both issues and resolves tokens.
type TokenManager interface {
	TokenIssuer
	TokenResolver
}

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Signup(ctx context.Context, email, password string) (string, models.User, error)
	Login(ctx context.Context, email, password string) (string, models.User, error)
	GetMe(ctx context.Context, token string) (models.User, error)
}

// UserService provides business logic for signup and login.
type UserService struct {
	users        storage.UserStore
	hasher       PasswordHasher
	tokens       TokenManager
	eventService EventServiceProvider
}

// NewUserService creates a new UserService. eventService may be nil.
func NewUserService(users storage.UserStore, hasher PasswordHasher, tokens TokenManager, eventService EventServiceProvider) *UserService {
	return &UserService{users: users, hasher: hasher, tokens: tokens, eventService: eventService}
}

// Signup creates a user and returns a token for it. Emails are stored as given.
func (s *UserService) Signup(ctx context.Context, email, password string) (string, models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", models.User{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", models.User{}, err
	}

	user, err := s.users.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return "", models.User{}, fmt.Errorf("email %s is already registered: %w", email, ErrConflict)
		}
		return "", models.User{}, fmt.Errorf("create user: %w: %w", ErrStorage, err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", models.User{}, fmt.Errorf("issue token: %w", err)
	}

	log.Info().Str("user_id", user.ID).Msg("User signed up")
	if s.eventService != nil {
		s.eventService.RecordEvent(ctx, user.ID, models.EventUserSignup, "Account created.")
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return token, user, nil
}

// Login verifies credentials and returns a fresh token.
func (s *UserService) Login(ctx context.Context, email, password string) (string, models.User, error) {
	user, err := s.users.FindUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", models.User{}, fmt.Errorf("authentication failed: user not found: %w", ErrUnauthorized)
		}
		return "", models.User{}, fmt.Errorf("find user: %w: %w", ErrStorage, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", models.User{}, fmt.Errorf("authentication failed: invalid password: %w", ErrUnauthorized)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", models.User{}, fmt.Errorf("issue token: %w", err)
	}

	user.PasswordHash = ""
	return token, user, nil
}

// GetMe returns the profile of the token's user.
func (s *UserService) GetMe(ctx context.Context, token string) (models.User, error) {
	userID, err := resolveSubject(s.tokens, token)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, fmt.Errorf("user %s no longer exists: %w", userID, ErrUnauthorized)
		}
		return models.User{}, fmt.Errorf("get user: %w: %w", ErrStorage, err)
	}

	user.PasswordHash = ""
	return user, nil
}
