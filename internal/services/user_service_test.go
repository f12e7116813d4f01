package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/isdelr/postkeep-be/internal/auth"
	"github.com/isdelr/postkeep-be/internal/models"
	"github.com/isdelr/postkeep-be/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (*UserService, *auth.TokenService, *EventService) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tokens, err := auth.NewTokenService("test-secret", time.Hour, nil)
	require.NoError(t, err)
	events := NewEventService(tokens, store, store)
	return NewUserService(store, auth.BcryptHasher{Cost: 4}, tokens, events), tokens, events
}

func TestSignupIssuesTokenForNewUser(t *testing.T) {
	svc, tokens, events := newUserService(t)
	ctx := context.Background()

	token, user, err := svc.Signup(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Empty(t, user.PasswordHash)

	subject, err := tokens.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)

	recent, err := events.GetRecentEvents(ctx, token, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, models.EventUserSignup, recent[0].Type)
}

func TestSignupValidation(t *testing.T) {
	svc, _, _ := newUserService(t)

	_, _, err := svc.Signup(context.Background(), "  ", "pw")
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.Signup(context.Background(), "a@example.com", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, _, _ := newUserService(t)

	_, _, err := svc.Signup(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)

	_, _, err = svc.Signup(context.Background(), "alice@example.com", "other")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLogin(t *testing.T) {
	svc, tokens, _ := newUserService(t)
	ctx := context.Background()

	_, created, err := svc.Signup(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)

	token, user, err := svc.Login(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.Empty(t, user.PasswordHash)
	subject, err := tokens.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, subject)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = svc.Login(ctx, "nobody@example.com", "hunter2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = svc.Login(ctx, "ALICE@example.com", "hunter2")
	assert.ErrorIs(t, err, ErrUnauthorized, "emails are case-sensitive")
}

func TestGetMe(t *testing.T) {
	svc, tokens, _ := newUserService(t)
	ctx := context.Background()

	token, created, err := svc.Signup(ctx, "alice@example.com", "hunter2")
	require.NoError(t, err)

	me, err := svc.GetMe(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, me.ID)
	assert.Equal(t, "alice@example.com", me.Email)

	_, err = svc.GetMe(ctx, "bogus")
	assert.ErrorIs(t, err, ErrUnauthorized)

	ghost, err := tokens.Issue("no-such-user")
	require.NoError(t, err)
	_, err = svc.GetMe(ctx, ghost)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetRecentEventsClampsLimit(t *testing.T) {
	svc, _, events := newUserService(t)
	ctx := context.Background()

	token, user, err := svc.Signup(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	for i := 0; i < MaxEventLimit+5; i++ {
		events.RecordEvent(ctx, user.ID, models.EventPostCreate, "created")
	}

	recent, err := events.GetRecentEvents(ctx, token, 1000)
	require.NoError(t, err)
	assert.Len(t, recent, MaxEventLimit)

	recent, err = events.GetRecentEvents(ctx, token, -1)
	require.NoError(t, err)
	assert.Len(t, recent, DefaultEventLimit)

	_, err = events.GetRecentEvents(ctx, "bad", 5)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
