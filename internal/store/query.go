package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sadopc/timetrail/internal/model"
)

// HistoryBetween returns every live entry with start in [begin, end],
// optionally restricted to category, oldest first.
func (s *Store) HistoryBetween(ctx context.Context, begin, end int64, category string) ([]model.DerivedEntry, error) {
	query := selectFields + " WHERE start BETWEEN ? AND ?"
	args := []any{begin, end}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY start ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history between %d and %d: %w", begin, end, err)
	}
	defer rows.Close()
	return scanDerivedEntries(rows)
}

// HistoryAfter returns up to limit live entries with start > from, oldest
// first: a forward page.
func (s *Store) HistoryAfter(ctx context.Context, from int64, limit int) ([]model.DerivedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectFields+" WHERE start > ? ORDER BY start ASC LIMIT ?", from, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history after %d: %w", from, err)
	}
	defer rows.Close()
	return scanDerivedEntries(rows)
}

// HistoryBefore returns up to limit live entries with start < until, oldest
// first: a backward page. The scan runs newest-first internally (to pick
// the limit nearest until) and is reversed before returning, so the result
// matches HistoryBetween/HistoryAfter's ascending convention.
func (s *Store) HistoryBefore(ctx context.Context, until int64, limit int) ([]model.DerivedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectFields+" WHERE start < ? ORDER BY start DESC LIMIT ?", until, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history before %d: %w", until, err)
	}
	defer rows.Close()
	entries, err := scanDerivedEntries(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// CategoryStat is one row of a Stats report: the total duration logged
// under a category prefix (entries in progress contribute elapsed time
// against the current instant).
type CategoryStat struct {
	Category string
	Duration int64
}

// Stats aggregates duration by category, within [begin, end], grouping
// categories at the first occurrence of separator after the segment that
// follows the category prefix (so "work/clientA/bugfix" rolls up to "work/clientA"
// when category is "work" and separator is "/"). An empty category
// aggregates every live entry by its top-level segment.
func (s *Store) Stats(ctx context.Context, begin, end int64, category, separator string) ([]CategoryStat, error) {
	var query string
	var args []any

	if category == "" {
		query = `
		WITH result AS (
			SELECT rtrim(substr(category, 1, ifnull(nullif(instr(category, ?) - 1, -1), length(category)))) AS category,
				CASE WHEN duration != -1 THEN duration
					ELSE (SELECT CAST(strftime('%s','now') AS INTEGER)) - (SELECT start FROM timelog ORDER BY start DESC LIMIT 1)
				END AS duration
			FROM timelog
			WHERE start BETWEEN ? AND ?
		)
		SELECT category, SUM(duration) FROM result GROUP BY category ORDER BY category ASC`
		args = []any{separator, begin, end}
	} else {
		query = `
		WITH result AS (
			SELECT rtrim(substr(category, 1, ifnull(
				nullif(instr(substr(category, nullif(instr(substr(category, length(?) + 1), ?), 0) + 1 + length(?)), ?), 0) + length(?),
				length(category)
			))) AS category,
				CASE WHEN duration != -1 THEN duration
					ELSE (SELECT CAST(strftime('%s','now') AS INTEGER)) - (SELECT start FROM timelog ORDER BY start DESC LIMIT 1)
				END AS duration
			FROM timelog
			WHERE (start BETWEEN ? AND ?) AND category LIKE ? || '%'
		)
		SELECT category, SUM(duration) FROM result GROUP BY category ORDER BY category ASC`
		args = []any{category, separator, category, separator, category, begin, end, category}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	var stats []CategoryStat
	for rows.Next() {
		var st CategoryStat
		if err := rows.Scan(&st.Category, &st.Duration); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// SyncData returns every change (live write or tombstone) whose mtime lies
// in (mBegin, mEnd], oldest first: the replication log a peer replays
// against its own store during Sync.
func (s *Store) SyncData(ctx context.Context, mBegin, mEnd int64) ([]model.SyncEntry, error) {
	const query = `
	WITH result AS (
		SELECT uuid, start, category, comment, mtime FROM timelog WHERE mtime > ? AND mtime <= ?
		UNION ALL
		SELECT uuid, NULL, NULL, NULL, mtime FROM removed WHERE mtime > ? AND mtime <= ?
	)
	SELECT * FROM result ORDER BY mtime ASC`

	rows, err := s.db.QueryContext(ctx, query, mBegin, mEnd, mBegin, mEnd)
	if err != nil {
		return nil, fmt.Errorf("sync data: %w", err)
	}
	defer rows.Close()
	return scanSyncEntries(rows)
}

// SyncAffected returns the current state (live or tombstoned) of uuid, as
// SyncData would report it, used by the sync engine to classify a single
// incoming record against what the local store already knows.
func (s *Store) SyncAffected(ctx context.Context, id uuid.UUID) (*model.SyncEntry, error) {
	const query = `
	WITH result AS (
		SELECT uuid, start, category, comment, mtime FROM timelog WHERE uuid = ?
		UNION ALL
		SELECT uuid, NULL, NULL, NULL, mtime FROM removed WHERE uuid = ?
	)
	SELECT * FROM result ORDER BY mtime DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, id[:], id[:])
	var rawUUID []byte
	var start sql.NullInt64
	var cat, comment sql.NullString
	var mtime int64
	if err := row.Scan(&rawUUID, &start, &cat, &comment, &mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sync affected %s: %w", id, err)
	}
	e, err := toSyncEntry(rawUUID, start, cat, comment, mtime)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanSyncEntries(rows *sql.Rows) ([]model.SyncEntry, error) {
	var out []model.SyncEntry
	for rows.Next() {
		var rawUUID []byte
		var start sql.NullInt64
		var cat, comment sql.NullString
		var mtime int64
		if err := rows.Scan(&rawUUID, &start, &cat, &comment, &mtime); err != nil {
			return nil, fmt.Errorf("sync data: %w", err)
		}
		e, err := toSyncEntry(rawUUID, start, cat, comment, mtime)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func toSyncEntry(rawUUID []byte, start sql.NullInt64, cat, comment sql.NullString, mtime int64) (model.SyncEntry, error) {
	id, err := uuid.FromBytes(rawUUID)
	if err != nil {
		return model.SyncEntry{}, fmt.Errorf("decode uuid: %w", err)
	}
	e := model.SyncEntry{UUID: id, MTime: mtime, Valid: start.Valid}
	if start.Valid {
		e.Start = start.Int64
		e.Category = cat.String
		e.Comment = comment.String
	}
	return e, nil
}
