package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cnrosu/yt-ai-summariser/internal/cache"
	"github.com/cnrosu/yt-ai-summariser/internal/config"
	"github.com/cnrosu/yt-ai-summariser/internal/conversation"
	"github.com/cnrosu/yt-ai-summariser/internal/database"
	"github.com/cnrosu/yt-ai-summariser/internal/handler"
	"github.com/cnrosu/yt-ai-summariser/internal/localstore"
)

// storage is the persistence selected by STORAGE_BACKEND
type storage struct {
	entries cache.Backend
	threads conversation.ThreadStore
	turns   conversation.TurnStore
	pinger  handler.Pinger
	close   func()
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		store, err := localstore.Open(cfg.SQLitePath, cfg.SQLiteBusyTimeout)
		if err != nil {
			return nil, err
		}
		return &storage{
			entries: store,
			threads: store,
			turns:   store,
			pinger:  store,
			close: func() {
				if err := store.Close(); err != nil {
					slog.Error("Failed to close SQLite store", "error", err)
				}
			},
		}, nil

	case "mongo":
		db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
		if err != nil {
			return nil, err
		}
		if err := database.CreateIndexes(ctx, db); err != nil {
			db.Disconnect(context.Background())
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		return &storage{
			entries: database.NewTranscriptRepository(db),
			threads: database.NewThreadRepository(db),
			turns:   database.NewTurnRepository(db),
			pinger:  db,
			close: func() {
				if err := db.Disconnect(context.Background()); err != nil {
					slog.Error("Failed to disconnect from MongoDB", "error", err)
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
