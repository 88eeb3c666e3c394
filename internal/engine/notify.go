package engine

import (
	"context"

	"github.com/sadopc/timetrail/internal/model"
	"github.com/sadopc/timetrail/internal/store"
)

// neighbourhoodMask is the field set every insert/remove notification
// carries: the derived attributes that can change on a neighbour without
// that neighbour itself being the row that moved.
const neighbourhoodMask = model.FieldDurationTime | model.FieldPrecedingStart

// notifyInsert returns the minimal neighbourhood affected by inserting a row
// at newStart, paired with the field mask every row in that neighbourhood
// should be reported as having changed.
func notifyInsert(ctx context.Context, st *store.Store, newStart int64) ([]model.DerivedEntry, model.FieldMask, error) {
	entries, err := st.NeighbourhoodInsert(ctx, newStart)
	if err != nil {
		return nil, 0, err
	}
	return entries, neighbourhoodMask, nil
}

// notifyRemove returns the minimal neighbourhood affected by removing a row
// that used to sit at oldStart.
func notifyRemove(ctx context.Context, st *store.Store, oldStart int64) ([]model.DerivedEntry, model.FieldMask, error) {
	entries, err := st.NeighbourhoodRemove(ctx, oldStart)
	if err != nil {
		return nil, 0, err
	}
	return entries, neighbourhoodMask, nil
}

// notifyEdit returns the neighbourhood affected by editing a row, and the
// mask those neighbours changed by. When startChanged is true the edit moved
// the row, so both its old and new neighbourhoods are affected and the
// reported mask gains the derived fields on top of whatever the caller
// edited directly; when false, only the row itself (identified by start)
// is reported, with the caller's mask unchanged.
func notifyEdit(ctx context.Context, st *store.Store, newStart, oldStart int64, startChanged bool, callerMask model.FieldMask) ([]model.DerivedEntry, model.FieldMask, error) {
	if !startChanged {
		entries, err := st.NeighbourhoodAt(ctx, newStart)
		if err != nil {
			return nil, 0, err
		}
		return entries, callerMask, nil
	}
	entries, err := st.NeighbourhoodEditStart(ctx, newStart, oldStart)
	if err != nil {
		return nil, 0, err
	}
	return entries, callerMask | neighbourhoodMask, nil
}
