// Package cache stores completed transcripts keyed by video id.
//
// Entries are written zstd-compressed. Entries written as plain text by older
// clients are still read back transparently.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
)

// Backend persists raw cache entries. GetEntry returns (nil, nil) when the key is absent.
type Backend interface {
	GetEntry(ctx context.Context, key string) (*model.CacheEntry, error)
	PutEntry(ctx context.Context, entry *model.CacheEntry) error
}

// Store is the transcript cache
type Store struct {
	backend Backend
}

// NewStore creates a cache over a storage backend
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get returns the cached transcript for key. Anything that cannot be read back,
// including backend failures, is reported as not cached.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	entry, err := s.backend.GetEntry(ctx, key)
	if err != nil {
		slog.Warn("Failed to read cache entry", "key", key, "error", err)
		return "", false
	}
	if entry == nil {
		return "", false
	}

	text, err := Decode(entry)
	if err != nil {
		slog.Warn("Discarding undecodable cache entry",
			"key", key,
			"encoding", entry.Encoding,
			"error", err,
		)
		return "", false
	}

	return text, true
}

// Put writes text under key in the canonical encoding. Rewrites replace the previous value.
func (s *Store) Put(ctx context.Context, key, text string) error {
	if key == "" {
		return &model.StorageError{Key: key, Err: errors.New("empty cache key")}
	}

	entry := Encode(key, text)
	entry.CreatedAt = time.Now().UTC()

	if err := s.backend.PutEntry(ctx, entry); err != nil {
		var storageErr *model.StorageError
		if errors.As(err, &storageErr) {
			return err
		}
		return &model.StorageError{Key: key, Err: fmt.Errorf("put cache entry: %w", err)}
	}

	slog.Debug("Cached transcript",
		"key", key,
		"raw_length", entry.RawLength,
		"stored_length", len(entry.Value),
	)
	return nil
}
