package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sadopc/timetrail/internal/model"
)

// InsertOne writes a single live entry, autocommitting outside any
// Transaction. It reports false, without error, when check_insert_timelog
// silently abandoned the write because a newer tombstone exists for the
// same uuid.
func (s *Store) InsertOne(ctx context.Context, e model.SyncEntry) (bool, error) {
	return insertOne(ctx, s.db, e)
}

// RemoveOne tombstones uuid at the given modification time. It reports
// false, without error, when check_insert_removed silently abandoned the
// write because a newer tombstone already exists.
func (s *Store) RemoveOne(ctx context.Context, id uuid.UUID, mtime int64) (bool, error) {
	return removeOne(ctx, s.db, id, mtime)
}

// EditOne updates the fields named by mask on the live entry identified by
// e.UUID. It reports false, without error, when check_update_timelog
// silently abandoned the write because the incoming mtime is stale, or when
// no row with that uuid exists.
func (s *Store) EditOne(ctx context.Context, e model.SyncEntry, mask model.FieldMask) (bool, error) {
	return editOne(ctx, s.db, e, mask)
}

func insertOne(ctx context.Context, ex execer, e model.SyncEntry) (bool, error) {
	mtime := e.MTime
	if mtime == 0 {
		mtime = time.Now().UnixMilli()
	}
	res, err := ex.ExecContext(ctx,
		`INSERT INTO timelog (uuid, start, category, comment, mtime) VALUES (?, ?, ?, ?, ?)`,
		e.UUID[:], e.Start, e.Category, e.Comment, mtime,
	)
	if err != nil {
		return false, fmt.Errorf("insert entry %s: %w", e.UUID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert entry %s: %w", e.UUID, err)
	}
	return n > 0, nil
}

func removeOne(ctx context.Context, ex execer, id uuid.UUID, mtime int64) (bool, error) {
	if mtime == 0 {
		mtime = time.Now().UnixMilli()
	}
	res, err := ex.ExecContext(ctx,
		`INSERT OR REPLACE INTO removed (uuid, mtime) VALUES (?, ?)`,
		id[:], mtime,
	)
	if err != nil {
		return false, fmt.Errorf("remove entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove entry %s: %w", id, err)
	}
	return n > 0, nil
}

func editOne(ctx context.Context, ex execer, e model.SyncEntry, mask model.FieldMask) (bool, error) {
	var sets []string
	var args []any

	if mask.Has(model.FieldStartTime) {
		sets = append(sets, "start = ?")
		args = append(args, e.Start)
	}
	if mask.Has(model.FieldCategory) {
		sets = append(sets, "category = ?")
		args = append(args, e.Category)
	}
	if mask.Has(model.FieldComment) {
		sets = append(sets, "comment = ?")
		args = append(args, e.Comment)
	}
	if len(sets) == 0 {
		return false, fmt.Errorf("edit entry %s: no fields selected", e.UUID)
	}

	mtime := e.MTime
	if mtime == 0 {
		mtime = time.Now().UnixMilli()
	}
	sets = append(sets, "mtime = ?")
	args = append(args, mtime)
	args = append(args, e.UUID[:])

	query := "UPDATE timelog SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE uuid = ?"

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("edit entry %s: %w", e.UUID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("edit entry %s: %w", e.UUID, err)
	}
	return n > 0, nil
}

// RenameCategory rewrites every live entry currently filed under oldName to
// newName in one statement, stamping all of them with the same mtime. It is
// a no-op, reporting no error, when no live entry currently has oldName.
func (s *Store) RenameCategory(ctx context.Context, oldName, newName string, mtime int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE timelog SET category = ?, mtime = ? WHERE category = ?`,
		newName, mtime, oldName,
	)
	if err != nil {
		return fmt.Errorf("rename category %q to %q: %w", oldName, newName, err)
	}
	return nil
}

// GetEntry returns the live entry for uuid, or nil if none exists (live or
// tombstoned).
func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (*model.DerivedEntry, error) {
	row := s.db.QueryRowContext(ctx, selectFields+" WHERE uuid = ?", id[:])
	e, err := scanDerivedEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return e, nil
}

// GetEntries returns every live entry whose category is exactly category,
// oldest first. It is used by EditCategory to capture undo state before a
// category-wide rename.
func (s *Store) GetEntries(ctx context.Context, category string) ([]model.DerivedEntry, error) {
	rows, err := s.db.QueryContext(ctx, selectFields+" WHERE category = ? ORDER BY start ASC", category)
	if err != nil {
		return nil, fmt.Errorf("get entries for category %q: %w", category, err)
	}
	defer rows.Close()
	return scanDerivedEntries(rows)
}

func scanDerivedEntry(row *sql.Row) (*model.DerivedEntry, error) {
	var e model.DerivedEntry
	var rawUUID []byte
	if err := row.Scan(&rawUUID, &e.Start, &e.Category, &e.Comment, &e.Duration, &e.PrecedingStart); err != nil {
		return nil, err
	}
	id, err := uuid.FromBytes(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("decode uuid: %w", err)
	}
	e.UUID = id
	return &e, nil
}

func scanDerivedEntries(rows *sql.Rows) ([]model.DerivedEntry, error) {
	var out []model.DerivedEntry
	for rows.Next() {
		var e model.DerivedEntry
		var rawUUID []byte
		if err := rows.Scan(&rawUUID, &e.Start, &e.Category, &e.Comment, &e.Duration, &e.PrecedingStart); err != nil {
			return nil, err
		}
		id, err := uuid.FromBytes(rawUUID)
		if err != nil {
			return nil, fmt.Errorf("decode uuid: %w", err)
		}
		e.UUID = id
		out = append(out, e)
	}
	return out, rows.Err()
}
