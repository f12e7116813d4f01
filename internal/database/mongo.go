package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewMongo connects to MongoDB and returns a handle to the named database.
func NewMongo(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(dbName), nil
}

// MigrateMongo ensures the indexes the stores rely on.
func MigrateMongo(ctx context.Context, db *mongo.Database) error {
	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)

	users := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := db.Collection("users").Indexes().CreateMany(ctx, users, opts); err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}

	posts := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	if _, err := db.Collection("posts").Indexes().CreateMany(ctx, posts, opts); err != nil {
		return fmt.Errorf("ensure post indexes: %w", err)
	}

	events := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := db.Collection("events").Indexes().CreateMany(ctx, events, opts); err != nil {
		return fmt.Errorf("ensure event indexes: %w", err)
	}
	return nil
}
