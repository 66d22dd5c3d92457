// Package postgres keeps fridgeshare state in PostgreSQL. Transactions run
// against the in-memory store; each commit writes the changed JSONB buckets.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"fridgeshare/internal/infra/persistence/memory"
	"fridgeshare/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	localDSN   = "postgres://localhost/fridgeshare?sslmode=disable"

	createStateTable = `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	selectState = `SELECT bucket, payload FROM state`
	upsertState = `INSERT INTO state(bucket,payload) VALUES($1,$2)
		ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload, updated_at=now()`
)

var (
	openDB = sql.Open
	openMu sync.Mutex
)

// Store is a memory.Store whose committed state survives restarts in Postgres.
type Store struct {
	*memory.Store
	db *sql.DB

	written memory.Checkpoint
}

// NewStore connects to dsn (a local database when empty), creates the state
// table if needed and loads the last committed state.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = localDSN
	}
	openMu.Lock()
	db, err := openDB(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db}
	if err := s.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.SetCommitHook(s.write)
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createStateTable); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, selectState)
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

// DB returns the connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen replaces the connection opener and returns a restore func.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := openDB
	openDB = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		openDB = prev
	}
}
