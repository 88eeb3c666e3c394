// Package store is the persistence layer for the time log: an ordered
// table of live entries plus a tombstone table of removed UUIDs, with
// duration maintenance and modification-time guards expressed as SQL
// triggers so a mutation and its derived-value fixups commit atomically.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sadopc/timetrail/internal/model"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// selectFields is the projection shared by every read that returns a
// DerivedEntry: the live row plus the start of its nearest predecessor.
const selectFields = `SELECT uuid, start, category, comment, duration,
	ifnull((SELECT start FROM timelog WHERE start < result.start ORDER BY start DESC LIMIT 1), 0)
	FROM timelog AS result`

type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The engine is single-writer by design (see internal/engine); one
	// connection keeps SQLite's own locking out of the picture.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS timelog (
		uuid       BLOB UNIQUE,
		start      INTEGER PRIMARY KEY,
		category   TEXT NOT NULL DEFAULT '',
		comment    TEXT NOT NULL DEFAULT '',
		duration   INTEGER NOT NULL DEFAULT -1,
		mtime      INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS removed (
		uuid  BLOB UNIQUE,
		mtime INTEGER NOT NULL DEFAULT 0
	);

	-- Insert into timelog is abandoned (no row written, no error surfaced)
	-- when a tombstone for the same uuid is newer than the incoming row:
	-- the writer is behind. An equal mtime is accepted.
	CREATE TRIGGER IF NOT EXISTS check_insert_timelog BEFORE INSERT ON timelog
	BEGIN
		SELECT mtime,
			CASE WHEN NEW.mtime < mtime
				THEN RAISE(IGNORE)
			END
		FROM removed WHERE uuid = NEW.uuid;
	END;

	-- After a live insert succeeds: fix the predecessor's duration, give
	-- the new row its own duration against its successor (or -1), and
	-- drop any now-superseded tombstone for the same uuid.
	CREATE TRIGGER IF NOT EXISTS insert_timelog AFTER INSERT ON timelog
	BEGIN
		UPDATE timelog SET duration = (NEW.start - start)
		WHERE start = (
			SELECT start FROM timelog WHERE start < NEW.start ORDER BY start DESC LIMIT 1
		);
		UPDATE timelog SET duration = IFNULL(
			(SELECT start FROM timelog WHERE start > NEW.start ORDER BY start ASC LIMIT 1) - NEW.start,
			-1
		) WHERE start = NEW.start;
		DELETE FROM removed WHERE uuid = NEW.uuid;
	END;

	-- After a live delete: the old predecessor's duration must reach past
	-- the deleted row to whatever now follows it, or -1 if nothing does.
	CREATE TRIGGER IF NOT EXISTS delete_timelog AFTER DELETE ON timelog
	BEGIN
		UPDATE timelog SET duration = IFNULL(
			(SELECT start FROM timelog WHERE start > OLD.start ORDER BY start ASC LIMIT 1) - start,
			-1
		) WHERE start = (
			SELECT start FROM timelog WHERE start < OLD.start ORDER BY start DESC LIMIT 1
		);
	END;

	-- Update is abandoned when the incoming write is older than what is
	-- already stored: last-writer-wins.
	CREATE TRIGGER IF NOT EXISTS check_update_timelog BEFORE UPDATE ON timelog
	BEGIN
		SELECT CASE WHEN NEW.mtime < OLD.mtime
			THEN RAISE(IGNORE)
		END;
	END;

	-- An update that moves start must re-thread duration on both sides of
	-- the move: the old predecessor, the new predecessor, and the row
	-- itself. NULLIF guards the case where both positions share a
	-- predecessor, so it isn't updated twice with stale intermediate data.
	CREATE TRIGGER IF NOT EXISTS update_timelog AFTER UPDATE OF start ON timelog
	BEGIN
		UPDATE timelog SET duration = (NEW.start - start)
		WHERE start = (
			SELECT start FROM timelog WHERE start < NEW.start ORDER BY start DESC LIMIT 1
		);
		UPDATE timelog SET duration = IFNULL(
			(SELECT start FROM timelog WHERE start > OLD.start ORDER BY start ASC LIMIT 1) - start,
			-1
		) WHERE start = NULLIF(
			(SELECT start FROM timelog WHERE start < OLD.start ORDER BY start DESC LIMIT 1),
			(SELECT start FROM timelog WHERE start < NEW.start ORDER BY start DESC LIMIT 1)
		);
		UPDATE timelog SET duration = IFNULL(
			(SELECT start FROM timelog WHERE start > NEW.start ORDER BY start ASC LIMIT 1) - NEW.start,
			-1
		) WHERE start = NEW.start;
	END;

	CREATE TRIGGER IF NOT EXISTS check_insert_removed BEFORE INSERT ON removed
	BEGIN
		SELECT mtime,
			CASE WHEN NEW.mtime < mtime
				THEN RAISE(IGNORE)
			END
		FROM removed WHERE uuid = NEW.uuid;
	END;

	-- Tombstoning a uuid evicts its live row, if any.
	CREATE TRIGGER IF NOT EXISTS insert_removed AFTER INSERT ON removed
	BEGIN
		DELETE FROM timelog WHERE uuid = NEW.uuid;
	END;
	`
	_, err := s.db.Exec(ddl)
	return err
}

// DefaultDBPath returns the standard per-user location for the database,
// $XDG_CONFIG_HOME/timetrail/timelog.sqlite (or its platform equivalent).
func DefaultDBPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "timetrail", "timelog.sqlite"), nil
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting the primitive
// mutations below run standalone (autocommit) or inside a Transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Tx groups primitive mutations issued through Store.Transaction so they
// commit or roll back together.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) InsertOne(ctx context.Context, e model.SyncEntry) (bool, error) {
	return insertOne(ctx, t.tx, e)
}

func (t *Tx) RemoveOne(ctx context.Context, id uuid.UUID, mtime int64) (bool, error) {
	return removeOne(ctx, t.tx, id, mtime)
}

func (t *Tx) EditOne(ctx context.Context, e model.SyncEntry, fields model.FieldMask) (bool, error) {
	return editOne(ctx, t.tx, e, fields)
}

// Transaction runs fn under one BEGIN/COMMIT. An error returned by fn, or a
// failed commit, rolls the transaction back; a rollback failure is folded
// into the returned error rather than swallowed.
func (s *Store) Transaction(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("commit transaction: %w (rollback also failed: %v)", err, rbErr)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
