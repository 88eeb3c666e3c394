package store

import (
	"context"
	"fmt"

	"github.com/sadopc/timetrail/internal/model"
)

// NeighbourhoodInsert returns the minimal set of rows whose duration or
// preceding-start may have changed as a result of inserting a row at
// newStart: the two rows at or before it, and the one row after it.
func (s *Store) NeighbourhoodInsert(ctx context.Context, newStart int64) ([]model.DerivedEntry, error) {
	query := fmt.Sprintf(`
	SELECT * FROM ( %[1]s WHERE start <= ? ORDER BY start DESC LIMIT 2 )
	UNION
	SELECT * FROM ( %[1]s WHERE start > ? ORDER BY start ASC LIMIT 1 )
	ORDER BY start ASC`, selectFields)
	return s.queryNeighbourhood(ctx, query, newStart, newStart)
}

// NeighbourhoodRemove returns the rows adjacent to a row that used to sit
// at oldStart: its old predecessor and successor, the only rows whose
// derived duration can change once it is gone.
func (s *Store) NeighbourhoodRemove(ctx context.Context, oldStart int64) ([]model.DerivedEntry, error) {
	query := fmt.Sprintf(`
	SELECT * FROM ( %[1]s WHERE start < ? ORDER BY start DESC LIMIT 1 )
	UNION
	SELECT * FROM ( %[1]s WHERE start > ? ORDER BY start ASC LIMIT 1 )
	ORDER BY start ASC`, selectFields)
	return s.queryNeighbourhood(ctx, query, oldStart, oldStart)
}

// NeighbourhoodEditStart returns the neighbourhoods of both the old and new
// positions of a row whose start has moved: up to two rows at or before
// newStart, the row after newStart, the row before oldStart, and the row
// after oldStart.
func (s *Store) NeighbourhoodEditStart(ctx context.Context, newStart, oldStart int64) ([]model.DerivedEntry, error) {
	query := fmt.Sprintf(`
	SELECT * FROM ( %[1]s WHERE start <= ? ORDER BY start DESC LIMIT 2 )
	UNION
	SELECT * FROM ( %[1]s WHERE start > ? ORDER BY start ASC LIMIT 1 )
	UNION
	SELECT * FROM ( %[1]s WHERE start < ? ORDER BY start DESC LIMIT 1 )
	UNION
	SELECT * FROM ( %[1]s WHERE start > ? ORDER BY start ASC LIMIT 1 )
	ORDER BY start ASC`, selectFields)
	return s.queryNeighbourhood(ctx, query, newStart, newStart, oldStart, oldStart)
}

// NeighbourhoodAt returns the single row at start: the notification set for
// an edit that changes category/comment but leaves start untouched.
func (s *Store) NeighbourhoodAt(ctx context.Context, start int64) ([]model.DerivedEntry, error) {
	query := selectFields + " WHERE start = ? ORDER BY start ASC"
	return s.queryNeighbourhood(ctx, query, start)
}

func (s *Store) queryNeighbourhood(ctx context.Context, query string, args ...any) ([]model.DerivedEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("neighbourhood query: %w", err)
	}
	defer rows.Close()
	return scanDerivedEntries(rows)
}

// Size reports the number of live entries.
func (s *Store) Size(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM timelog").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return n, nil
}

// Categories returns the distinct categories among live entries with start
// in [begin, end].
func (s *Store) Categories(ctx context.Context, begin, end int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT category FROM timelog WHERE start BETWEEN ? AND ?", begin, end,
	)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("categories: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
