package database

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates all necessary indexes for the collections.
// Transcripts and threads are keyed by _id and need none beyond the default.
func CreateIndexes(ctx context.Context, db *MongoDB) error {
	slog.Info("Creating MongoDB indexes")

	if err := createTurnIndexes(ctx, db); err != nil {
		return err
	}

	slog.Info("Successfully created all MongoDB indexes")
	return nil
}

func createTurnIndexes(ctx context.Context, db *MongoDB) error {
	collection := db.GetCollection(CollectionTurns)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "video_id", Value: 1},
				{Key: "seq", Value: 1},
			},
			Options: options.Index().SetName("idx_video_id_seq"),
		},
		{
			Keys: bson.D{
				{Key: "video_id", Value: 1},
				{Key: "question", Value: 1},
			},
			Options: options.Index().SetName("idx_video_id_question"),
		},
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctxTimeout, indexes); err != nil {
		return err
	}

	slog.Info("Created turns indexes")
	return nil
}
