package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TranscriptRepository stores cache entries, one document per video id
type TranscriptRepository struct {
	collection *mongo.Collection
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db *MongoDB) *TranscriptRepository {
	return &TranscriptRepository{
		collection: db.GetCollection(CollectionTranscripts),
	}
}

// GetEntry retrieves the entry for key, or nil when none was written
func (r *TranscriptRepository) GetEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var entry model.CacheEntry
	err := r.collection.FindOne(ctxTimeout, bson.M{"_id": key}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}

	return &entry, nil
}

// PutEntry upserts the entry. Concurrent writers of the same key resolve last-write-wins.
func (r *TranscriptRepository) PutEntry(ctx context.Context, entry *model.CacheEntry) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctxTimeout, bson.M{"_id": entry.Key}, entry, opts); err != nil {
		return wrapWriteError(entry.Key, fmt.Errorf("failed to put transcript: %w", err))
	}

	return nil
}
