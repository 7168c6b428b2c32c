// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without CGo and a
// test can spin up a private ":memory:" database in microseconds.
//
// CONNECTION SETTINGS:
// Pragmas are passed in the DSN (`_pragma=...`) rather than run once with Exec.
// database/sql hands out several connections and PRAGMA foreign_keys is
// per-connection, so a one-off Exec would only configure whichever connection
// happened to run it.
//
//   - foreign_keys(1)      every reference is enforced
//   - journal_mode(WAL)    readers keep going while one writer commits
//   - busy_timeout(N)      a writer waits N ms for the lock before SQLITE_BUSY
//   - _txlock=immediate    write transactions take the lock at BEGIN, so a
//     transaction never fails halfway through when it upgrades from reading
//     to writing
//
// In-memory databases exist per connection, so ":memory:" runs with a pool of
// exactly one.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/repository"
	"github.com/sakif/snipspace/internal/repository/sqlite/migrations"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5 * time.Second

// querier is the subset of *sql.DB and *sql.Tx the repositories need. Every
// repository method is written once against it and works both inside and
// outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements repository.Tx on top of a querier.
type queries struct {
	q querier
}

var _ repository.Tx = (*queries)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	*queries
	conn   *sql.DB
	logger *zap.Logger
}

var _ repository.Store = (*DB)(nil)

type options struct {
	busyTimeout time.Duration
	logger      *zap.Logger
}

type Option func(*options)

// WithBusyTimeout sets how long a writer waits for the database lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New opens the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/snippets.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string, opts ...Option) (*DB, error) {
	o := options{busyTimeout: defaultBusyTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	memory := dbPath == ":memory:"
	conn, err := sql.Open("sqlite", dsn(dbPath, memory, o.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{queries: &queries{q: conn}, conn: conn, logger: o.logger}

	if err := db.migrate(migrations.FS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(path string, memory bool, busy time.Duration) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busy.Milliseconds()),
	}
	if !memory {
		params = append(params, "_pragma=journal_mode(WAL)", "_txlock=immediate")
	}
	return path + "?" + strings.Join(params, "&")
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	return translate("ping", db.conn.PingContext(ctx))
}

// WithTx runs fn inside a write transaction.
//
// The deferred Rollback is a no-op once Commit has succeeded, and it also
// covers the case where fn panics.
func (db *DB) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return translate("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("commit failed", zap.Error(err))
		return translate("committing transaction", err)
	}
	return nil
}

// View runs fn inside a read-only transaction. Under WAL the transaction
// reads one snapshot and never blocks the writer.
func (db *DB) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return translate("beginning read transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	return fn(&queries{q: tx})
}

// migrate applies every embedded NNN_name.up.sql newer than the recorded
// schema version. Each file runs in its own transaction together with the
// version bump, so a failed migration leaves no half-applied schema.
func (db *DB) migrate(fsys fs.FS) error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := db.conn.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := db.applyMigration(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		db.logger.Info("migration applied", zap.String("file", name))
	}

	return nil
}

func (db *DB) applyMigration(version int, stmt string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(stmt); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		version, time.Now().UnixNano(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Timestamps are stored as Unix nanoseconds.
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// rowsAffected converts a sql.Result into the int counts the repositories
// return.
func rowsAffected(op string, res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: %s: checking rows affected: %w", op, err)
	}
	return int(n), nil
}
