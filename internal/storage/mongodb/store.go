// Package mongodb implements the storage contracts over MongoDB collections.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/postkeep-be/internal/database"
	"github.com/isdelr/postkeep-be/internal/models"
	"github.com/isdelr/postkeep-be/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

type postDoc struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Text      string    `bson:"text"`
	CreatedAt time.Time `bson:"created_at"`
}

type eventDoc struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Type      string    `bson:"type"`
	Message   string    `bson:"message"`
	CreatedAt time.Time `bson:"created_at"`
}

// Store implements storage.Store over MongoDB.
type Store struct {
	db     *mongo.Database
	users  *mongo.Collection
	posts  *mongo.Collection
	events *mongo.Collection
	now    func() time.Time
}

// Open connects to uri, selects dbName and ensures indexes.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	db, err := database.NewMongo(ctx, uri, dbName)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateMongo(ctx, db); err != nil {
		_ = db.Client().Disconnect(context.Background())
		return nil, err
	}
	return &Store{
		db:     db,
		users:  db.Collection("users"),
		posts:  db.Collection("posts"),
		events: db.Collection("events"),
		now:    time.Now,
	}, nil
}

// BSON datetimes carry millisecond precision.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Ping verifies the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Client().Disconnect(ctx)
}

// CreateUser inserts a new user with a freshly generated id.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (models.User, error) {
	doc := userDoc{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.timestamp(),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, fmt.Errorf("user with email %s: %w", email, storage.ErrDuplicate)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return doc.toModel(), nil
}

// FindUserByEmail retrieves a user by email, including the password hash.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

// GetUserByID retrieves a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.toModel(), nil
}

// InsertPost stores a new post owned by ownerID.
func (s *Store) InsertPost(ctx context.Context, ownerID, text string) (models.Post, error) {
	doc := postDoc{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Text:      text,
		CreatedAt: s.timestamp(),
	}
	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return doc.toModel(), nil
}

// ListPostsByOwner returns the owner's posts oldest first; ties on the
// timestamp are broken by id so the order is deterministic.
func (s *Store) ListPostsByOwner(ctx context.Context, ownerID string) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.posts.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	var docs []postDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	posts := make([]models.Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, doc.toModel())
	}
	return posts, nil
}

// DeletePostIfOwner removes the post only when it belongs to ownerID.
func (s *Store) DeletePostIfOwner(ctx context.Context, postID, ownerID string) (bool, error) {
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": postID, "owner_id": ownerID})
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// InsertEvent appends an entry to the owner's activity log.
func (s *Store) InsertEvent(ctx context.Context, event models.Event) error {
	doc := eventDoc{
		ID:        event.ID,
		OwnerID:   event.OwnerID,
		Type:      event.Type,
		Message:   event.Message,
		CreatedAt: event.CreatedAt.UTC().Truncate(time.Millisecond),
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		doc.CreatedAt = s.timestamp()
	}
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListRecentEvents returns the owner's most recent events, newest first.
func (s *Store) ListRecentEvents(ctx context.Context, ownerID string, limit int) ([]models.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.events.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	var docs []eventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	events := make([]models.Event, 0, len(docs))
	for _, doc := range docs {
		events = append(events, models.Event{
			ID:        doc.ID,
			OwnerID:   doc.OwnerID,
			Type:      doc.Type,
			Message:   doc.Message,
			CreatedAt: doc.CreatedAt,
		})
	}
	return events, nil
}

func (d userDoc) toModel() models.User {
	return models.User{ID: d.ID, Email: d.Email, PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt}
}

func (d postDoc) toModel() models.Post {
	return models.Post{ID: d.ID, OwnerID: d.OwnerID, Text: d.Text, CreatedAt: d.CreatedAt}
}

var _ storage.Store = (*Store)(nil)
