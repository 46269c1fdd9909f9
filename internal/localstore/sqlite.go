// Package localstore is the single-file SQLite backend for transcripts,
// threads and turns. It is used when no MongoDB deployment is configured.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	key        TEXT PRIMARY KEY,
	encoding   TEXT NOT NULL DEFAULT '',
	value      BLOB NOT NULL,
	raw_length INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS threads (
	video_id        TEXT PRIMARY KEY,
	thread_id       TEXT NOT NULL,
	first_turn_sent INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id TEXT NOT NULL,
	question TEXT NOT NULL,
	answer   TEXT NOT NULL,
	asked_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_video_seq ON turns(video_id, seq);
`

const maxBusyRetries = 3

// Store is a SQLite-backed storage backend
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// path may be ":memory:".
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("localstore: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstore: open: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("localstore: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: exec schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: ping: %w", err)
	}

	slog.Info("Opened SQLite store", "path", path)
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is usable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetEntry returns the cache entry for key, or nil when absent
func (s *Store) GetEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	var (
		entry     model.CacheEntry
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, encoding, value, raw_length, created_at FROM transcripts WHERE key = ?`, key,
	).Scan(&entry.Key, &entry.Encoding, &entry.Value, &entry.RawLength, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: get transcript: %w", err)
	}
	entry.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &entry, nil
}

// PutEntry upserts a cache entry
func (s *Store) PutEntry(ctx context.Context, entry *model.CacheEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO transcripts (key, encoding, value, raw_length, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			encoding = excluded.encoding,
			value = excluded.value,
			raw_length = excluded.raw_length,
			created_at = excluded.created_at`,
		entry.Key, entry.Encoding, entry.Value, entry.RawLength, createdAt.UnixMilli(),
	)
	if err != nil {
		return wrapWriteError(entry.Key, fmt.Errorf("localstore: put transcript: %w", err))
	}
	return nil
}

// GetThread returns the thread for a video, or nil when none exists
func (s *Store) GetThread(ctx context.Context, videoID string) (*model.Thread, error) {
	var (
		thread    model.Thread
		sent      int
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT video_id, thread_id, first_turn_sent, created_at FROM threads WHERE video_id = ?`, videoID,
	).Scan(&thread.VideoID, &thread.ThreadID, &sent, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: get thread: %w", err)
	}
	thread.FirstTurnSent = sent != 0
	thread.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &thread, nil
}

// SaveThread upserts the thread record
func (s *Store) SaveThread(ctx context.Context, thread *model.Thread) error {
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO threads (video_id, thread_id, first_turn_sent, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			first_turn_sent = excluded.first_turn_sent`,
		thread.VideoID, thread.ThreadID, boolToInt(thread.FirstTurnSent), thread.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return wrapWriteError(thread.VideoID, fmt.Errorf("localstore: save thread: %w", err))
	}
	return nil
}

// MarkFirstTurnSent records that the transcript has been posted to the thread
func (s *Store) MarkFirstTurnSent(ctx context.Context, videoID string) error {
	result, err := s.exec(ctx, `UPDATE threads SET first_turn_sent = 1 WHERE video_id = ?`, videoID)
	if err != nil {
		return wrapWriteError(videoID, fmt.Errorf("localstore: mark first turn: %w", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("localstore: thread not found")
	}
	return nil
}

// AppendTurn inserts a turn at the end of the video's log
func (s *Store) AppendTurn(ctx context.Context, turn *model.Turn) error {
	if turn.AskedAt.IsZero() {
		turn.AskedAt = time.Now().UTC()
	}
	result, err := s.exec(ctx,
		`INSERT INTO turns (video_id, question, answer, asked_at) VALUES (?, ?, ?, ?)`,
		turn.VideoID, turn.Question, turn.Answer, turn.AskedAt.UnixMilli(),
	)
	if err != nil {
		return wrapWriteError(turn.VideoID, fmt.Errorf("localstore: append turn: %w", err))
	}
	if id, err := result.LastInsertId(); err == nil {
		turn.Seq = id
	}
	return nil
}

// ListTurns returns the video's turns in submission order
func (s *Store) ListTurns(ctx context.Context, videoID string) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, video_id, question, answer, asked_at FROM turns WHERE video_id = ? ORDER BY seq`, videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("localstore: list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]model.Turn, 0)
	for rows.Next() {
		var (
			turn    model.Turn
			askedAt int64
		)
		if err := rows.Scan(&turn.Seq, &turn.VideoID, &turn.Question, &turn.Answer, &askedAt); err != nil {
			return nil, fmt.Errorf("localstore: scan turn: %w", err)
		}
		turn.AskedAt = time.UnixMilli(askedAt).UTC()
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// RemoveTurn deletes every turn of the video asked with question
func (s *Store) RemoveTurn(ctx context.Context, videoID, question string) (int64, error) {
	result, err := s.exec(ctx, `DELETE FROM turns WHERE video_id = ? AND question = ?`, videoID, question)
	if err != nil {
		return 0, fmt.Errorf("localstore: remove turn: %w", err)
	}
	return result.RowsAffected()
}

// exec retries statements that hit a locked database
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	for i := range maxBusyRetries {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}
		if !isBusy(err) || i == maxBusyRetries-1 {
			return nil, err
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("localstore: max retries exceeded")
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func isFull(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_FULL
	}
	return strings.Contains(err.Error(), "database or disk is full")
}

func wrapWriteError(key string, err error) error {
	if isFull(err) {
		return &model.StorageError{Key: key, Err: fmt.Errorf("%w: %v", model.ErrStorageFull, err)}
	}
	return &model.StorageError{Key: key, Err: err}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
