package engine

import (
	"context"
	"fmt"

	"github.com/sadopc/timetrail/internal/model"
	"github.com/sadopc/timetrail/internal/store"
)

// syncPlan is the classification of one Sync call: for each incoming
// record, whether it was accepted and which bucket (removal, insertion,
// update) it landed in. old/new are parallel slices reporting the state
// before and after, in application order.
type syncPlan struct {
	removedOld, removedNew   []model.SyncEntry
	insertedOld, insertedNew []model.SyncEntry
	updatedOld, updatedNew   []model.SyncEntry
}

// classifySync compares every incoming record against what the local store
// already knows, dropping anything the store's mtime already dominates.
// Storage itself re-checks mtime under the stale-write trigger when the
// plan is applied; this pass exists to build the stats event and group
// records for the single apply transaction, not as the sole guard.
func classifySync(ctx context.Context, st *store.Store, updated, removed []model.SyncEntry) (*syncPlan, error) {
	plan := &syncPlan{}

	for _, incoming := range removed {
		affected, err := st.SyncAffected(ctx, incoming.UUID)
		if err != nil {
			return nil, err
		}
		if affected != nil && affected.MTime >= incoming.MTime {
			continue
		}
		old := model.SyncEntry{UUID: incoming.UUID}
		if affected != nil {
			old = *affected
		}
		plan.removedOld = append(plan.removedOld, old)
		// removedNew carries the merged tombstone form: the prior live
		// state's fields with the incoming uuid/mtime, so observers can
		// still display what was removed.
		plan.removedNew = append(plan.removedNew, model.SyncEntry{
			UUID: incoming.UUID, MTime: incoming.MTime, Valid: false,
			Start: old.Start, Category: old.Category, Comment: old.Comment,
		})
	}

	for _, incoming := range updated {
		affected, err := st.SyncAffected(ctx, incoming.UUID)
		if err != nil {
			return nil, err
		}
		if affected != nil && affected.MTime >= incoming.MTime {
			continue
		}
		if affected == nil || !affected.Valid {
			old := model.SyncEntry{UUID: incoming.UUID}
			if affected != nil {
				old = *affected
			}
			plan.insertedOld = append(plan.insertedOld, old)
			plan.insertedNew = append(plan.insertedNew, incoming)
		} else {
			plan.updatedOld = append(plan.updatedOld, *affected)
			plan.updatedNew = append(plan.updatedNew, incoming)
		}
	}

	return plan, nil
}

// applySync writes every record in plan inside a single transaction,
// removals first, then insertions, then updates, matching the ordering the
// original worker used so that a record tombstoned and reinserted in the
// same batch lands in the right final state. Entries the storage layer
// itself rejects (a race against its own stale-write guard, which cannot
// happen under the single-writer policy but costs nothing to handle) are
// dropped from their slice so the notify phase never reports a no-op. A
// storage error aborts the whole transaction.
func applySync(ctx context.Context, st *store.Store, plan *syncPlan) error {
	return st.Transaction(ctx, func(tx *store.Tx) error {
		var err error
		plan.removedOld, plan.removedNew, err = filterApplied(plan.removedOld, plan.removedNew,
			func(i int) (bool, error) { return tx.RemoveOne(ctx, plan.removedNew[i].UUID, plan.removedNew[i].MTime) })
		if err != nil {
			return err
		}

		plan.insertedOld, plan.insertedNew, err = filterApplied(plan.insertedOld, plan.insertedNew,
			func(i int) (bool, error) { return tx.InsertOne(ctx, plan.insertedNew[i]) })
		if err != nil {
			return err
		}

		plan.updatedOld, plan.updatedNew, err = filterApplied(plan.updatedOld, plan.updatedNew,
			func(i int) (bool, error) { return tx.EditOne(ctx, plan.updatedNew[i], model.AllFieldsMask) })
		return err
	})
}

// filterApplied calls apply(i) for every index of oldV/newV and keeps only
// the pairs where it reported success, preserving order. It stops at the
// first error apply returns and passes that error back.
func filterApplied(oldV, newV []model.SyncEntry, apply func(i int) (bool, error)) ([]model.SyncEntry, []model.SyncEntry, error) {
	var keptOld, keptNew []model.SyncEntry
	for i := range oldV {
		ok, err := apply(i)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		keptOld = append(keptOld, oldV[i])
		keptNew = append(keptNew, newV[i])
	}
	return keptOld, keptNew, nil
}

// notifySync runs the post-commit notification phase: every dataRemoved
// event before any neighbourhood recompute for removals, then every
// dataInserted before its neighbourhood recompute, then per-update
// field-diff notifications, mirroring the original's emission order so
// observers see a coherent picture of "what left" before "what moved as a
// result".
func notifySync(ctx context.Context, st *store.Store, plan *syncPlan, publish func(Event)) error {
	for i, old := range plan.removedOld {
		if !old.Valid {
			continue
		}
		publish(DataRemoved{Entry: model.DerivedEntry{
			Entry: model.Entry{
				UUID: plan.removedNew[i].UUID, Start: old.Start,
				Category: old.Category, Comment: old.Comment,
				Duration: model.NoSuccessorDuration, MTime: plan.removedNew[i].MTime,
			},
		}})
	}
	for _, old := range plan.removedOld {
		if !old.Valid {
			continue
		}
		if err := publishNeighbourhood(ctx, st, publish, notifyRemove, old.Start); err != nil {
			return err
		}
	}

	for _, n := range plan.insertedNew {
		entry, err := st.GetEntry(ctx, n.UUID)
		if err != nil {
			return err
		}
		if entry != nil {
			publish(DataInserted{Entry: *entry})
		}
	}
	for _, n := range plan.insertedNew {
		if err := publishNeighbourhood(ctx, st, publish, notifyInsert, n.Start); err != nil {
			return err
		}
	}

	for i, newV := range plan.updatedNew {
		oldV := plan.updatedOld[i]
		var fields model.FieldMask
		if newV.Start != oldV.Start {
			fields |= model.FieldStartTime
		}
		if newV.Category != oldV.Category {
			fields |= model.FieldCategory
		}
		if newV.Comment != oldV.Comment {
			fields |= model.FieldComment
		}
		entries, mask, err := notifyEdit(ctx, st, newV.Start, oldV.Start, fields.Has(model.FieldStartTime), fields)
		if err != nil {
			return err
		}
		publishDataUpdated(publish, entries, mask)
	}

	return nil
}

type neighbourhoodFn func(ctx context.Context, st *store.Store, start int64) ([]model.DerivedEntry, model.FieldMask, error)

func publishNeighbourhood(ctx context.Context, st *store.Store, publish func(Event), fn neighbourhoodFn, start int64) error {
	entries, mask, err := fn(ctx, st, start)
	if err != nil {
		return err
	}
	publishDataUpdated(publish, entries, mask)
	return nil
}

func publishDataUpdated(publish func(Event), entries []model.DerivedEntry, mask model.FieldMask) {
	if len(entries) == 0 {
		return
	}
	fields := make([]model.FieldMask, len(entries))
	for i := range fields {
		fields[i] = mask
	}
	publish(DataUpdated{Entries: entries, Fields: fields})
}

// runSync executes the four phases of a Sync call: classify, report stats,
// apply, notify. On any storage failure it reports the error verbatim so
// the caller can clear its undo journal and mark itself outdated.
func runSync(ctx context.Context, st *store.Store, updated, removed []model.SyncEntry, publish func(Event)) error {
	plan, err := classifySync(ctx, st, updated, removed)
	if err != nil {
		return fmt.Errorf("classify sync: %w", err)
	}

	publish(SyncStatsAvailable{
		RemovedOld: plan.removedOld, RemovedNew: plan.removedNew,
		InsertedOld: plan.insertedOld, InsertedNew: plan.insertedNew,
		UpdatedOld: plan.updatedOld, UpdatedNew: plan.updatedNew,
	})

	if err := applySync(ctx, st, plan); err != nil {
		return fmt.Errorf("apply sync: %w", err)
	}

	if err := notifySync(ctx, st, plan, publish); err != nil {
		return fmt.Errorf("notify sync: %w", err)
	}

	publish(DataSynced{Updated: updated, Removed: removed})
	return nil
}
