package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TurnRepository persists the ordered question/answer log per video
type TurnRepository struct {
	collection *mongo.Collection
}

// NewTurnRepository creates a new turn repository
func NewTurnRepository(db *MongoDB) *TurnRepository {
	return &TurnRepository{
		collection: db.GetCollection(CollectionTurns),
	}
}

// AppendTurn inserts a turn at the end of the video's log
func (r *TurnRepository) AppendTurn(ctx context.Context, turn *model.Turn) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if turn.AskedAt.IsZero() {
		turn.AskedAt = time.Now().UTC()
	}
	if turn.Seq == 0 {
		turn.Seq = time.Now().UnixNano()
	}

	if _, err := r.collection.InsertOne(ctxTimeout, turn); err != nil {
		return wrapWriteError(turn.VideoID, fmt.Errorf("failed to append turn: %w", err))
	}

	return nil
}

// ListTurns returns the video's turns in submission order
func (r *TurnRepository) ListTurns(ctx context.Context, videoID string) ([]model.Turn, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := r.collection.Find(ctxTimeout, bson.M{"video_id": videoID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	turns := make([]model.Turn, 0)
	if err := cursor.All(ctxTimeout, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode turns: %w", err)
	}

	return turns, nil
}

// RemoveTurn deletes every turn of the video asked with question
func (r *TurnRepository) RemoveTurn(ctx context.Context, videoID, question string) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.collection.DeleteMany(ctxTimeout, bson.M{"video_id": videoID, "question": question})
	if err != nil {
		return 0, fmt.Errorf("failed to remove turn: %w", err)
	}

	return result.DeletedCount, nil
}
