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

// ThreadRepository persists the video id -> remote thread mapping
type ThreadRepository struct {
	collection *mongo.Collection
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *MongoDB) *ThreadRepository {
	return &ThreadRepository{
		collection: db.GetCollection(CollectionThreads),
	}
}

// GetThread returns the thread for a video, or nil when none exists
func (r *ThreadRepository) GetThread(ctx context.Context, videoID string) (*model.Thread, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var thread model.Thread
	err := r.collection.FindOne(ctxTimeout, bson.M{"_id": videoID}).Decode(&thread)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return &thread, nil
}

// SaveThread upserts the thread record
func (r *ThreadRepository) SaveThread(ctx context.Context, thread *model.Thread) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctxTimeout, bson.M{"_id": thread.VideoID}, thread, opts); err != nil {
		return wrapWriteError(thread.VideoID, fmt.Errorf("failed to save thread: %w", err))
	}

	return nil
}

// MarkFirstTurnSent records that the transcript has been posted to the thread
func (r *ThreadRepository) MarkFirstTurnSent(ctx context.Context, videoID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"_id": videoID},
		bson.M{"$set": bson.M{"first_turn_sent": true}},
	)
	if err != nil {
		return wrapWriteError(videoID, fmt.Errorf("failed to mark first turn: %w", err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("thread not found")
	}

	return nil
}
