// Package history keeps the most recent delivered transcriptions in SQLite.
package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"go.aimuz.me/voxtype/internal/types"
)

// Keep is the number of records retained.
const Keep = 100

// FileName is the database file name inside the data directory.
const FileName = "history.db"

// Record is one delivered transcription.
type Record struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	Text      string     `json:"text"`
	Mode      types.Mode `json:"mode"`
	Language  string     `json:"language"`
}

// Store is a SQLite-backed history.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now, entropy: ulid.Monotonic(rand.Reader, 0)}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= 1 {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS transcriptions (
	  id         TEXT PRIMARY KEY,
	  created_at INTEGER NOT NULL,
	  text       TEXT NOT NULL,
	  mode       TEXT NOT NULL,
	  language   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcriptions_created
	ON transcriptions(created_at DESC);
	PRAGMA user_version=1;`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Add records a transcription and prunes everything beyond Keep.
func (s *Store) Add(ctx context.Context, text string, mode types.Mode, language string) (Record, error) {
	now := s.now()
	s.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	s.mu.Unlock()
	if err != nil {
		return Record{}, fmt.Errorf("generate id: %w", err)
	}

	rec := Record{ID: id.String(), CreatedAt: now, Text: text, Mode: mode, Language: language}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transcriptions (id, created_at, text, mode, language) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, now.UnixMilli(), text, string(mode), language,
	); err != nil {
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	// ULIDs sort by time, so the newest Keep ids are the largest.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transcriptions WHERE id NOT IN (SELECT id FROM transcriptions ORDER BY id DESC LIMIT ?)`,
		Keep,
	); err != nil {
		return Record{}, fmt.Errorf("prune history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = Keep
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, text, mode, language FROM transcriptions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			ms   int64
			mode string
		)
		if err := rows.Scan(&r.ID, &ms, &r.Text, &mode, &r.Language); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.CreatedAt = time.UnixMilli(ms)
		r.Mode = types.Mode(mode)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Clear deletes all records.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcriptions`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
