package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/postkeep-be/internal/auth"
	"github.com/isdelr/postkeep-be/internal/cache"
	"github.com/isdelr/postkeep-be/internal/models"
	"github.com/isdelr/postkeep-be/internal/storage/sqlite"
	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingStore records how often each owner's posts were read from storage.
type countingStore struct {
	*sqlite.Store
	mu    sync.Mutex
	lists map[string]int
}

func (s *countingStore) ListPostsByOwner(ctx context.Context, ownerID string) ([]models.Post, error) {
	s.mu.Lock()
	s.lists[ownerID]++
	s.mu.Unlock()
	return s.Store.ListPostsByOwner(ctx, ownerID)
}

func (s *countingStore) listCount(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists[ownerID]
}

type notification struct {
	ownerID string
	action  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyOwner(ownerID, action string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{ownerID: ownerID, action: action})
}

type PostServiceSuite struct {
	suite.Suite

	ctx      context.Context
	clock    *fakeClock
	store    *countingStore
	tokens   *auth.TokenService
	cache    *cache.PostCache
	events   *EventService
	notifier *recordingNotifier
	service  *PostService
}

func TestPostService(t *testing.T) {
	suite.Run(t, &PostServiceSuite{})
}

func (s *PostServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}

	store, err := sqlite.Open(filepath.Join(s.T().TempDir(), "posts.db"))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = store.Close() })
	s.store = &countingStore{Store: store, lists: make(map[string]int)}

	s.tokens, err = auth.NewTokenService("test-secret", time.Hour, s.clock.Now)
	s.Require().NoError(err)

	s.cache = cache.NewPostCache(cache.DefaultTTL, cache.DefaultCapacity, s.clock.Now)
	s.events = NewEventService(s.tokens, store, store)
	s.notifier = &recordingNotifier{}
	s.service = NewPostService(s.tokens, s.store, s.store, s.cache, s.events, s.notifier, false)
}

// newUser creates a user in the store and returns its id and a token for it.
func (s *PostServiceSuite) newUser(email string) (string, string) {
	user, err := s.store.CreateUser(s.ctx, email, "hash")
	s.Require().NoError(err)
	token, err := s.tokens.Issue(user.ID)
	s.Require().NoError(err)
	return user.ID, token
}

func postIDs(posts []models.Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func (s *PostServiceSuite) TestCreateAndListOwnPosts() {
	ownerID, token := s.newUser("alice@example.com")

	first, err := s.service.CreatePost(s.ctx, token, "hello")
	s.Require().NoError(err)
	second, err := s.service.CreatePost(s.ctx, token, "world")
	s.Require().NoError(err)

	posts, err := s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.Equal([]string{first, second}, postIDs(posts))
	for _, p := range posts {
		s.Equal(ownerID, p.OwnerID)
	}
}

func (s *PostServiceSuite) TestOwnershipIsolation() {
	_, alice := s.newUser("alice@example.com")
	_, bob := s.newUser("bob@example.com")

	aliceID, err := s.service.CreatePost(s.ctx, alice, "alice only")
	s.Require().NoError(err)

	posts, err := s.service.ListPosts(s.ctx, bob)
	s.Require().NoError(err)
	s.NotContains(postIDs(posts), aliceID)
	s.Empty(posts)
}

func (s *PostServiceSuite) TestPayloadBound() {
	_, token := s.newUser("alice@example.com")

	_, err := s.service.CreatePost(s.ctx, token, strings.Repeat("a", models.MaxPostTextBytes))
	s.Require().NoError(err)

	_, err = s.service.CreatePost(s.ctx, token, strings.Repeat("a", models.MaxPostTextBytes+1))
	s.ErrorIs(err, ErrValidation)
}

func (s *PostServiceSuite) TestPayloadBoundCountsUTF8Bytes() {
	_, token := s.newUser("alice@example.com")

	// "é" is two bytes in UTF-8.
	_, err := s.service.CreatePost(s.ctx, token, strings.Repeat("é", models.MaxPostTextBytes/2))
	s.Require().NoError(err)

	_, err = s.service.CreatePost(s.ctx, token, strings.Repeat("é", models.MaxPostTextBytes/2)+"a")
	s.ErrorIs(err, ErrValidation)

	posts, err := s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.Len(posts, 1)
}

func (s *PostServiceSuite) TestListIsFreshAfterCreate() {
	_, token := s.newUser("alice@example.com")

	posts, err := s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.Empty(posts)

	id, err := s.service.CreatePost(s.ctx, token, "new")
	s.Require().NoError(err)

	posts, err = s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.Contains(postIDs(posts), id)
}

func (s *PostServiceSuite) TestListIsFreshAfterCreateFromAnotherSession() {
	ownerID, first := s.newUser("alice@example.com")
	s.clock.Advance(time.Second)
	second, err := s.tokens.Issue(ownerID)
	s.Require().NoError(err)
	s.Require().NotEqual(first, second)

	_, err = s.service.ListPosts(s.ctx, first)
	s.Require().NoError(err)

	id, err := s.service.CreatePost(s.ctx, second, "from second session")
	s.Require().NoError(err)

	posts, err := s.service.ListPosts(s.ctx, first)
	s.Require().NoError(err)
	s.Contains(postIDs(posts), id)
}

func (s *PostServiceSuite) TestCacheServesUntilTTLElapses() {
	ownerID, token := s.newUser("alice@example.com")

	_, err := s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)

	// Written straight to the store, so the cache is not invalidated.
	direct, err := s.store.InsertPost(s.ctx, ownerID, "behind the cache's back")
	s.Require().NoError(err)

	s.clock.Advance(cache.DefaultTTL - time.Second)
	posts, err := s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.NotContains(postIDs(posts), direct.ID)
	s.Equal(1, s.store.listCount(ownerID))

	s.clock.Advance(time.Second)
	posts, err = s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.Contains(postIDs(posts), direct.ID)
	s.Equal(2, s.store.listCount(ownerID))
}

func (s *PostServiceSuite) TestCapacityEviction() {
	owners := make([]string, cache.DefaultCapacity+1)
	tokens := make([]string, cache.DefaultCapacity+1)
	for i := range tokens {
		owners[i], tokens[i] = s.newUser(fmt.Sprintf("owner-%03d@example.com", i))
		_, err := s.service.ListPosts(s.ctx, tokens[i])
		s.Require().NoError(err)
	}

	_, err := s.service.ListPosts(s.ctx, tokens[cache.DefaultCapacity])
	s.Require().NoError(err)
	s.Equal(1, s.store.listCount(owners[cache.DefaultCapacity]))

	_, err = s.service.ListPosts(s.ctx, tokens[0])
	s.Require().NoError(err)
	s.Equal(2, s.store.listCount(owners[0]), "oldest owner should have been evicted")
}

func (s *PostServiceSuite) TestDeleteOthersPostIsSilentNoop() {
	_, alice := s.newUser("alice@example.com")
	_, bob := s.newUser("bob@example.com")

	id, err := s.service.CreatePost(s.ctx, alice, "keep me")
	s.Require().NoError(err)

	s.NoError(s.service.DeletePost(s.ctx, bob, id))
	s.NoError(s.service.DeletePost(s.ctx, bob, "does-not-exist"))

	posts, err := s.service.ListPosts(s.ctx, alice)
	s.Require().NoError(err)
	s.Contains(postIDs(posts), id)
}

func (s *PostServiceSuite) TestDeleteOwnPostInvalidatesCache() {
	_, token := s.newUser("alice@example.com")

	id, err := s.service.CreatePost(s.ctx, token, "short lived")
	s.Require().NoError(err)
	posts, err := s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.Require().Len(posts, 1)

	s.Require().NoError(s.service.DeletePost(s.ctx, token, id))

	posts, err = s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.Empty(posts)
}

func (s *PostServiceSuite) TestStrictDeleteReportsNotFound() {
	strict := NewPostService(s.tokens, s.store, s.store, s.cache, nil, nil, true)
	_, alice := s.newUser("alice@example.com")
	_, bob := s.newUser("bob@example.com")

	id, err := strict.CreatePost(s.ctx, alice, "mine")
	s.Require().NoError(err)

	s.ErrorIs(strict.DeletePost(s.ctx, bob, id), ErrNotFound)
	s.NoError(strict.DeletePost(s.ctx, alice, id))
	s.ErrorIs(strict.DeletePost(s.ctx, alice, id), ErrNotFound)
}

func (s *PostServiceSuite) TestInvalidTokensAreRejectedWithoutMutation() {
	ownerID, valid := s.newUser("alice@example.com")
	id, err := s.service.CreatePost(s.ctx, valid, "existing")
	s.Require().NoError(err)

	expired := func() string {
		past := &fakeClock{now: s.clock.Now().Add(-2 * time.Hour)}
		issuer, err := auth.NewTokenService("test-secret", time.Hour, past.Now)
		s.Require().NoError(err)
		token, err := issuer.Issue(ownerID)
		s.Require().NoError(err)
		return token
	}()
	forged := func() string {
		issuer, err := auth.NewTokenService("someone-else", time.Hour, s.clock.Now)
		s.Require().NoError(err)
		token, err := issuer.Issue(ownerID)
		s.Require().NoError(err)
		return token
	}()

	for name, token := range map[string]string{"expired": expired, "malformed": "garbage", "empty": "", "forged": forged} {
		_, err := s.service.CreatePost(s.ctx, token, "nope")
		s.ErrorIs(err, ErrUnauthorized, name)

		_, err = s.service.ListPosts(s.ctx, token)
		s.ErrorIs(err, ErrUnauthorized, name)

		s.ErrorIs(s.service.DeletePost(s.ctx, token, id), ErrUnauthorized, name)
	}

	posts, err := s.store.Store.ListPostsByOwner(s.ctx, ownerID)
	s.Require().NoError(err)
	s.Equal([]string{id}, postIDs(posts))
}

func (s *PostServiceSuite) TestRecordsEventsAndNotifiesOwner() {
	ownerID, token := s.newUser("alice@example.com")

	id, err := s.service.CreatePost(s.ctx, token, "hello")
	s.Require().NoError(err)
	s.Require().NoError(s.service.DeletePost(s.ctx, token, id))

	events, err := s.events.GetRecentEvents(s.ctx, token, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(models.EventPostDelete, events[0].Type)
	s.Equal(models.EventPostCreate, events[1].Type)

	s.Equal([]notification{
		{ownerID: ownerID, action: ActionPostCreated},
		{ownerID: ownerID, action: ActionPostDeleted},
	}, s.notifier.sent)
}

func (s *PostServiceSuite) TestConcurrentCreateAndList() {
	_, token := s.newUser("alice@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.service.CreatePost(s.ctx, token, fmt.Sprintf("post %d", i))
			s.NoError(err)
			posts, err := s.service.ListPosts(s.ctx, token)
			s.NoError(err)
			s.Contains(postIDs(posts), id)
		}(i)
	}
	wg.Wait()

	posts, err := s.service.ListPosts(s.ctx, token)
	s.Require().NoError(err)
	s.Len(posts, 8)
}

// failingPostStore fails every call.
type failingPostStore struct{}

var errDown = errors.New("database is down")

func (failingPostStore) InsertPost(context.Context, string, string) (models.Post, error) {
	return models.Post{}, errDown
}

func (failingPostStore) ListPostsByOwner(context.Context, string) ([]models.Post, error) {
	return nil, errDown
}

func (failingPostStore) DeletePostIfOwner(context.Context, string, string) (bool, error) {
	return false, errDown
}

func (s *PostServiceSuite) TestStoreFailuresSurfaceAsStorageErrors() {
	service := NewPostService(s.tokens, s.store, failingPostStore{}, s.cache, nil, nil, false)
	_, token := s.newUser("alice@example.com")

	_, err := service.CreatePost(s.ctx, token, "x")
	s.ErrorIs(err, ErrStorage)
	s.ErrorIs(err, errDown)

	_, err = service.ListPosts(s.ctx, token)
	s.ErrorIs(err, ErrStorage)
	s.Equal(0, s.cache.Len())

	s.ErrorIs(service.DeletePost(s.ctx, token, "p1"), ErrStorage)
}

func (s *PostServiceSuite) TestUnknownSubjectIsUnauthorized() {
	_, owner := s.newUser("alice@example.com")
	id, err := s.service.CreatePost(s.ctx, owner, "existing")
	s.Require().NoError(err)

	ghost, err := s.tokens.Issue("no-such-user")
	s.Require().NoError(err)

	_, err = s.service.CreatePost(s.ctx, ghost, "orphan")
	s.ErrorIs(err, ErrUnauthorized)
	s.NotErrorIs(err, ErrStorage)

	_, err = s.service.ListPosts(s.ctx, ghost)
	s.ErrorIs(err, ErrUnauthorized)

	s.ErrorIs(s.service.DeletePost(s.ctx, ghost, id), ErrUnauthorized)

	_, err = s.events.GetRecentEvents(s.ctx, ghost, 10)
	s.ErrorIs(err, ErrUnauthorized)

	s.Equal(0, s.store.listCount("no-such-user"))
	s.Equal(0, s.cache.Len())
	orphans, err := s.store.Store.ListPostsByOwner(s.ctx, "no-such-user")
	s.Require().NoError(err)
	s.Empty(orphans)
	s.Len(s.notifier.sent, 1, "only the owner's create was announced")
}

// failingUserStore fails every identity lookup.
type failingUserStore struct{}

func (failingUserStore) GetUserByID(context.Context, string) (models.User, error) {
	return models.User{}, errDown
}

func (s *PostServiceSuite) TestIdentityLookupFailureIsStorageError() {
	service := NewPostService(s.tokens, failingUserStore{}, s.store, s.cache, nil, nil, false)
	_, token := s.newUser("alice@example.com")

	_, err := service.CreatePost(s.ctx, token, "x")
	s.ErrorIs(err, ErrStorage)
	s.ErrorIs(err, errDown)
	s.NotErrorIs(err, ErrUnauthorized)

	_, err = service.ListPosts(s.ctx, token)
	s.ErrorIs(err, ErrStorage)
}
