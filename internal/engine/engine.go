// Package engine is the single-writer coordinator sitting between the host
// program and the store: it owns the worker goroutine, the undo journal,
// and the cached size/category counters, and broadcasts every observable
// change as an Event.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sadopc/timetrail/internal/model"
	"github.com/sadopc/timetrail/internal/store"
)

// minTime/maxTime bound the full-range category scan run at Open and after
// bulk operations; every Start (Unix seconds) and MTime (Unix milliseconds)
// in this system is comfortably inside this range.
const (
	minTime = 0
	maxTime = 1 << 62
)

// Engine serializes every mutation and query onto one worker goroutine.
// Its fields are only ever touched from inside a command closure running
// on that goroutine; nothing here needs a mutex.
type Engine struct {
	store      *store.Store
	w          *worker
	log        *slog.Logger
	undo       undoStack
	categories model.CategoryIndex
	size       int64
}

// Open creates (or reuses) the SQLite-backed store at dataPath and starts
// the engine's worker goroutine. dataPath may be ":memory:" for a
// throwaway store. ctx bounds only the initial loading of the size and
// category counters; individual commands issued afterward are not
// cancellable.
func Open(ctx context.Context, dataPath string) (*Engine, error) {
	st, err := store.New(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return newEngine(ctx, st, slog.Default(), false)
}

// newEngineForTest builds an Engine whose worker runs commands inline,
// synchronously, on the calling goroutine — bypassing the channel so tests
// can assert on state immediately after a call returns instead of racing
// the worker goroutine.
func newEngineForTest(ctx context.Context, st *store.Store) (*Engine, error) {
	return newEngine(ctx, st, slog.New(slog.NewTextHandler(discardWriter{}, nil)), true)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newEngine(ctx context.Context, st *store.Store, log *slog.Logger, synchronous bool) (*Engine, error) {
	e := &Engine{
		store: st,
		w:     newWorker(log, synchronous),
		log:   log,
	}

	cats, err := st.Categories(ctx, minTime, maxTime)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open engine: load categories: %w", err)
	}
	e.categories = *model.NewCategoryIndex(cats)

	size, err := st.Size(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open engine: load size: %w", err)
	}
	e.size = size

	return e, nil
}

// Close stops accepting new commands, finishes whatever is already queued,
// and releases the underlying database handle.
func (e *Engine) Close(ctx context.Context) error {
	e.w.stop()
	return e.store.Close()
}

// Events returns the channel every observable change is broadcast on.
// Readers that fall behind miss events rather than stall the engine.
func (e *Engine) Events() <-chan Event {
	return e.w.events
}

// fail handles a storage-layer error uniformly: log it, tell observers,
// drop whatever undo history might no longer be safe to replay, and mark
// the view stale.
func (e *Engine) fail(err error) {
	e.log.Error("storage failure", slog.String("error", err.Error()))
	e.w.publish(Error{Message: err.Error()})
	if e.undo.len() > 0 {
		e.undo.clear()
		e.w.publish(UndoCountChanged{N: 0})
	}
	e.w.publish(DataOutdated{})
}

func (e *Engine) pushUndo(r model.UndoRecord) {
	e.undo.push(r)
	e.w.publish(UndoCountChanged{N: e.undo.len()})
}

// Insert adds a new entry. Fails silently, with no event, if a newer
// tombstone already covers this uuid.
func (e *Engine) Insert(entry model.SyncEntry) {
	e.w.submit(func() { e.insert(entry, true) })
}

func (e *Engine) insert(entry model.SyncEntry, recordUndo bool) bool {
	ctx := context.Background()
	ok, err := e.store.InsertOne(ctx, entry)
	if err != nil {
		e.fail(err)
		return false
	}
	if !ok {
		return false
	}

	stored, err := e.store.GetEntry(ctx, entry.UUID)
	if err != nil {
		e.fail(err)
		return false
	}
	if stored == nil {
		return false
	}

	if recordUndo {
		e.pushUndo(model.UndoRecord{
			Kind: model.UndoInsert,
			Data: []model.Entry{stored.Entry},
		})
	}

	e.w.publish(DataInserted{Entry: *stored})

	entries, mask, err := notifyInsert(ctx, e.store, stored.Start)
	if err != nil {
		e.fail(err)
		return false
	}
	publishDataUpdated(e.w.publish, entries, mask)

	if e.categories.Add(stored.Category) {
		e.w.publish(CategoriesChanged{Categories: e.categories.Slice()})
	}
	e.size++
	e.w.publish(SizeChanged{Size: e.size})
	return true
}

// Remove tombstones the entry identified by id, effective at mtime. Fails
// silently, with no event, if an existing tombstone for id has a newer
// mtime; the live entry's own mtime is not compared. An id with no live
// entry is reported as an Error.
func (e *Engine) Remove(id uuid.UUID, mtime int64) {
	e.w.submit(func() { e.remove(id, mtime, true) })
}

func (e *Engine) remove(id uuid.UUID, mtime int64, recordUndo bool) bool {
	ctx := context.Background()
	old, err := e.store.GetEntry(ctx, id)
	if err != nil {
		e.fail(err)
		return false
	}
	if old == nil {
		e.w.publish(Error{Message: fmt.Sprintf("remove: unknown entry %s", id)})
		return false
	}

	ok, err := e.store.RemoveOne(ctx, id, mtime)
	if err != nil {
		e.fail(err)
		return false
	}
	if !ok {
		return false
	}

	if recordUndo {
		e.pushUndo(model.UndoRecord{Kind: model.UndoRemove, Data: []model.Entry{old.Entry}})
	}

	e.w.publish(DataRemoved{Entry: *old})

	entries, mask, err := notifyRemove(ctx, e.store, old.Start)
	if err != nil {
		e.fail(err)
		return false
	}
	publishDataUpdated(e.w.publish, entries, mask)

	remaining, err := e.store.GetEntries(ctx, old.Category)
	if err != nil {
		e.fail(err)
		return false
	}
	if len(remaining) == 0 && e.categories.Remove(old.Category) {
		e.w.publish(CategoriesChanged{Categories: e.categories.Slice()})
	}

	e.size--
	e.w.publish(SizeChanged{Size: e.size})
	return true
}

// Edit updates the fields named by fields on the entry identified by
// entry.UUID. A successful edit is reported through DataUpdated (alongside
// UndoCountChanged and, when the category set changes, CategoriesChanged) —
// there is no separate "edited" event, since from an observer's point of
// view an edit is just another change to the affected neighbourhood.
func (e *Engine) Edit(entry model.SyncEntry, fields model.FieldMask) {
	e.w.submit(func() { e.edit(entry, fields, true) })
}

func (e *Engine) edit(entry model.SyncEntry, fields model.FieldMask, recordUndo bool) bool {
	ctx := context.Background()
	old, err := e.store.GetEntry(ctx, entry.UUID)
	if err != nil {
		e.fail(err)
		return false
	}
	if old == nil {
		e.w.publish(Error{Message: fmt.Sprintf("edit: unknown entry %s", entry.UUID)})
		return false
	}

	ok, err := e.store.EditOne(ctx, entry, fields)
	if err != nil {
		e.fail(err)
		return false
	}
	if !ok {
		return false
	}

	if recordUndo {
		e.pushUndo(model.UndoRecord{
			Kind:   model.UndoEdit,
			Data:   []model.Entry{old.Entry},
			Fields: []model.FieldMask{fields},
		})
	}

	newStart := old.Start
	startChanged := fields.Has(model.FieldStartTime) && entry.Start != old.Start
	if fields.Has(model.FieldStartTime) {
		newStart = entry.Start
	}
	entries, mask, err := notifyEdit(ctx, e.store, newStart, old.Start, startChanged, fields)
	if err != nil {
		e.fail(err)
		return false
	}
	publishDataUpdated(e.w.publish, entries, mask)

	if fields.Has(model.FieldCategory) && entry.Category != old.Category {
		added := e.categories.Add(entry.Category)
		remaining, err := e.store.GetEntries(ctx, old.Category)
		if err != nil {
			e.fail(err)
			return false
		}
		removed := len(remaining) == 0 && e.categories.Remove(old.Category)
		if added || removed {
			e.w.publish(CategoriesChanged{Categories: e.categories.Slice()})
		}
	}
	return true
}

// EditCategory renames every live entry filed under oldName to newName. If
// no live entry currently has oldName, it just drops oldName from the
// category index — a no-op on storage. An empty newName is rejected as
// invalid; renaming a category to itself is logged and ignored.
func (e *Engine) EditCategory(oldName, newName string) {
	e.w.submit(func() { e.editCategory(oldName, newName, true) })
}

func (e *Engine) editCategory(oldName, newName string, recordUndo bool) bool {
	ctx := context.Background()
	if newName == "" {
		e.w.publish(Error{Message: "edit category: new name is empty"})
		return false
	}
	if oldName == newName {
		e.log.Warn("edit category: old and new name are identical, ignoring", slog.String("category", oldName))
		return false
	}

	live, err := e.store.GetEntries(ctx, oldName)
	if err != nil {
		e.fail(err)
		return false
	}
	if len(live) == 0 {
		e.categories.Remove(oldName)
		return false
	}

	if recordUndo {
		data := make([]model.Entry, len(live))
		fields := make([]model.FieldMask, len(live))
		for i, d := range live {
			data[i] = d.Entry
			fields[i] = model.FieldCategory
		}
		e.pushUndo(model.UndoRecord{Kind: model.UndoEditCategory, Data: data, Fields: fields})
	}

	if err := e.store.RenameCategory(ctx, oldName, newName, time.Now().UnixMilli()); err != nil {
		e.fail(err)
		return false
	}

	cats, err := e.store.Categories(ctx, minTime, maxTime)
	if err != nil {
		e.fail(err)
		return false
	}
	e.categories.Reset(cats)
	e.w.publish(CategoriesChanged{Categories: e.categories.Slice()})
	return true
}

// Import bulk-inserts entries in a single transaction and does not record
// any undo entry; a mid-batch storage failure rolls back the entire batch.
func (e *Engine) Import(entries []model.SyncEntry) {
	e.w.submit(func() { e.importEntries(entries) })
}

func (e *Engine) importEntries(entries []model.SyncEntry) {
	ctx := context.Background()
	var insertedIDs []uuid.UUID

	err := e.store.Transaction(ctx, func(tx *store.Tx) error {
		for _, entry := range entries {
			ok, err := tx.InsertOne(ctx, entry)
			if err != nil {
				return err
			}
			if ok {
				insertedIDs = append(insertedIDs, entry.UUID)
			}
		}
		return nil
	})
	if err != nil {
		e.fail(err)
		return
	}

	var inserted []model.DerivedEntry
	for _, id := range insertedIDs {
		d, err := e.store.GetEntry(ctx, id)
		if err != nil {
			e.fail(err)
			return
		}
		if d != nil {
			inserted = append(inserted, *d)
		}
	}
	if len(inserted) > 0 {
		e.w.publish(DataImported{Entries: inserted})
	}

	e.refreshCounters(ctx)
}

// Sync reconciles remote changes against the local store, in one
// transaction, following the classify/stats/apply/notify sequence in
// runSync. It does not record an undo entry; a failure clears the journal.
func (e *Engine) Sync(updated, removed []model.SyncEntry) {
	e.w.submit(func() { e.syncData(updated, removed) })
}

func (e *Engine) syncData(updated, removed []model.SyncEntry) {
	ctx := context.Background()
	if err := runSync(ctx, e.store, updated, removed, e.w.publish); err != nil {
		e.fail(err)
		return
	}
	e.refreshCounters(ctx)
}

func (e *Engine) refreshCounters(ctx context.Context) {
	size, err := e.store.Size(ctx)
	if err != nil {
		e.fail(err)
		return
	}
	e.size = size
	e.w.publish(SizeChanged{Size: e.size})

	cats, err := e.store.Categories(ctx, minTime, maxTime)
	if err != nil {
		e.fail(err)
		return
	}
	e.categories.Reset(cats)
	e.w.publish(CategoriesChanged{Categories: e.categories.Slice()})
}

// Undo pops the most recent undo record and applies its inverse directly to
// the store, without pushing a new undo entry of its own. It is a no-op,
// reported as an Error, if the journal is empty.
func (e *Engine) Undo() {
	e.w.submit(func() { e.undoLast() })
}

func (e *Engine) undoLast() {
	rec, ok := e.undo.pop()
	if !ok {
		e.w.publish(Error{Message: "undo: nothing to undo"})
		return
	}
	e.w.publish(UndoCountChanged{N: e.undo.len()})

	switch rec.Kind {
	case model.UndoInsert:
		d := rec.Data[0]
		e.remove(d.UUID, 0, false)
	case model.UndoRemove:
		d := rec.Data[0]
		e.insert(model.SyncEntry{UUID: d.UUID, Start: d.Start, Category: d.Category, Comment: d.Comment}, false)
	case model.UndoEdit:
		d := rec.Data[0]
		e.edit(model.SyncEntry{UUID: d.UUID, Start: d.Start, Category: d.Category, Comment: d.Comment}, rec.Fields[0], false)
	case model.UndoEditCategory:
		for i, d := range rec.Data {
			ok := e.edit(model.SyncEntry{UUID: d.UUID, Start: d.Start, Category: d.Category, Comment: d.Comment}, rec.Fields[i], false)
			if !ok {
				break
			}
		}
	}
}

// HistoryBetween returns every live entry with start in [begin, end],
// optionally filtered to category.
func (e *Engine) HistoryBetween(begin, end int64, category string) ([]model.DerivedEntry, error) {
	type reply struct {
		entries []model.DerivedEntry
		err     error
	}
	ch := make(chan reply, 1)
	e.w.submit(func() {
		entries, err := e.store.HistoryBetween(context.Background(), begin, end, category)
		if err != nil {
			e.fail(err)
			ch <- reply{err: err}
			return
		}
		e.w.publish(HistoryRequestCompleted{Entries: entries})
		ch <- reply{entries: entries}
	})
	r := <-ch
	return r.entries, r.err
}

// HistoryAfter returns up to limit live entries with start > from, oldest
// first.
func (e *Engine) HistoryAfter(from int64, limit int) ([]model.DerivedEntry, error) {
	type reply struct {
		entries []model.DerivedEntry
		err     error
	}
	ch := make(chan reply, 1)
	e.w.submit(func() {
		entries, err := e.store.HistoryAfter(context.Background(), from, limit)
		if err != nil {
			e.fail(err)
			ch <- reply{err: err}
			return
		}
		e.w.publish(HistoryRequestCompleted{Entries: entries})
		ch <- reply{entries: entries}
	})
	r := <-ch
	return r.entries, r.err
}

// HistoryBefore returns up to limit live entries with start < until, oldest
// first.
func (e *Engine) HistoryBefore(until int64, limit int) ([]model.DerivedEntry, error) {
	type reply struct {
		entries []model.DerivedEntry
		err     error
	}
	ch := make(chan reply, 1)
	e.w.submit(func() {
		entries, err := e.store.HistoryBefore(context.Background(), until, limit)
		if err != nil {
			e.fail(err)
			ch <- reply{err: err}
			return
		}
		e.w.publish(HistoryRequestCompleted{Entries: entries})
		ch <- reply{entries: entries}
	})
	r := <-ch
	return r.entries, r.err
}

// Stats aggregates duration by category within [begin, end]; see
// store.Store.Stats for the rollup rules.
func (e *Engine) Stats(begin, end int64, category, separator string) ([]store.CategoryStat, error) {
	type reply struct {
		stats []store.CategoryStat
		err   error
	}
	ch := make(chan reply, 1)
	e.w.submit(func() {
		stats, err := e.store.Stats(context.Background(), begin, end, category, separator)
		if err != nil {
			e.fail(err)
			ch <- reply{err: err}
			return
		}
		e.w.publish(StatsDataAvailable{Stats: stats, End: end})
		ch <- reply{stats: stats}
	})
	r := <-ch
	return r.stats, r.err
}

// SyncData returns every change (live write or tombstone) in (mBegin,
// mEnd], the replication log a peer replays to catch up.
func (e *Engine) SyncData(mBegin, mEnd int64) ([]model.SyncEntry, error) {
	type reply struct {
		data []model.SyncEntry
		err  error
	}
	ch := make(chan reply, 1)
	e.w.submit(func() {
		data, err := e.store.SyncData(context.Background(), mBegin, mEnd)
		if err != nil {
			e.fail(err)
			ch <- reply{err: err}
			return
		}
		e.w.publish(SyncDataAvailable{Sync: data, MEnd: mEnd})
		ch <- reply{data: data}
	})
	r := <-ch
	return r.data, r.err
}

// Size reports the current number of live entries.
func (e *Engine) Size() int64 {
	ch := make(chan int64, 1)
	e.w.submit(func() { ch <- e.size })
	return <-ch
}

// Categories reports the distinct categories currently in use, in no
// particular order.
func (e *Engine) Categories() []string {
	ch := make(chan []string, 1)
	e.w.submit(func() { ch <- e.categories.Slice() })
	return <-ch
}
