package engine

import (
	"github.com/sadopc/timetrail/internal/model"
	"github.com/sadopc/timetrail/internal/store"
)

// Event is implemented by every value broadcast on Engine.Events(). The
// interface carries only an unexported marker method; it exists so
// observers can type switch on the concrete event without engine exposing
// a bare any.
type Event interface {
	isEvent()
}

type DataInserted struct{ Entry model.DerivedEntry }

type DataRemoved struct{ Entry model.DerivedEntry }

// DataUpdated reports the minimal neighbourhood of rows whose derived
// attributes changed as a side effect of some other mutation. Fields is
// parallel to Entries: the same mask value is repeated for every row in
// the batch.
type DataUpdated struct {
	Entries []model.DerivedEntry
	Fields  []model.FieldMask
}

type DataImported struct{ Entries []model.DerivedEntry }

type DataSynced struct {
	Updated []model.SyncEntry
	Removed []model.SyncEntry
}

// DataOutdated tells observers their view may be stale and should be
// reloaded wholesale: emitted after a storage failure, where the cached
// view can no longer be trusted.
type DataOutdated struct{}

// HistoryRequestCompleted carries the reply to a history query. The
// history methods take no request id, so RequestID is always zero.
type HistoryRequestCompleted struct {
	Entries   []model.DerivedEntry
	RequestID int64
}

type StatsDataAvailable struct {
	Stats []store.CategoryStat
	End   int64
}

type SyncDataAvailable struct {
	Sync []model.SyncEntry
	MEnd int64
}

// SyncStatsAvailable reports, before a Sync is applied, how each incoming
// record was classified: three parallel (old, new) pairs for removals,
// insertions, and updates.
type SyncStatsAvailable struct {
	RemovedOld, RemovedNew   []model.SyncEntry
	InsertedOld, InsertedNew []model.SyncEntry
	UpdatedOld, UpdatedNew   []model.SyncEntry
}

type SizeChanged struct{ Size int64 }

type CategoriesChanged struct{ Categories []string }

type UndoCountChanged struct{ N int }

type Error struct{ Message string }

func (DataInserted) isEvent()           {}
func (DataRemoved) isEvent()            {}
func (DataUpdated) isEvent()            {}
func (DataImported) isEvent()           {}
func (DataSynced) isEvent()             {}
func (DataOutdated) isEvent()           {}
func (HistoryRequestCompleted) isEvent() {}
func (StatsDataAvailable) isEvent()      {}
func (SyncDataAvailable) isEvent()       {}
func (SyncStatsAvailable) isEvent()      {}
func (SizeChanged) isEvent()             {}
func (CategoriesChanged) isEvent()       {}
func (UndoCountChanged) isEvent()        {}
func (Error) isEvent()                   {}
