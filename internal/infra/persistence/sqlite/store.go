// Package sqlite keeps fridgeshare state in an embedded SQLite file. Each
// committed transaction writes the JSON buckets that changed.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"fridgeshare/internal/infra/persistence/memory"
	"fridgeshare/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultPath = "fridgeshare.db"

	createStateTable = `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	selectState = `SELECT bucket, payload FROM state`
	upsertState = `INSERT INTO state(bucket,payload) VALUES(?,?)
		ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload, updated_at=CURRENT_TIMESTAMP`
)

// Store is a memory.Store whose committed state survives restarts in SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string

	written memory.Checkpoint
}

// NewStore opens (or creates) the database at path, defaulting to
// fridgeshare.db in the working directory, and loads its state.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: concurrent snapshot writers would hit SQLITE_BUSY
	db.SetMaxOpenConns(1)
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.SetCommitHook(s.write)
	return s, nil
}

func (s *Store) load() error {
	if _, err := s.db.Exec(createStateTable); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	rows, err := s.db.Query(selectState)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return err
		}
		s.written.Seed(bucket, payload)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// write stores the changed buckets of next. It runs as the memory store's
// commit hook, so a failed write leaves the previous state in place.
func (s *Store) write(ctx context.Context, next memory.Snapshot) (err error) {
	encoded, err := next.EncodeBuckets()
	if err != nil {
		return err
	}
	pending := s.written.Pending(encoded)
	if len(pending) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range pending {
		if _, err = tx.ExecContext(ctx, upsertState, bucket, encoded[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.written.Commit(encoded, pending)
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }
