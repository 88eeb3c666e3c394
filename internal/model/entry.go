// Package model holds the domain types shared by the store and engine
// layers: entries, their sync-wire form, field masks, and undo records.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NoSuccessorDuration is the sentinel duration recorded on the last live
// entry, which has no successor to derive a gap from.
const NoSuccessorDuration = -1

// Entry is a single live activity record. Duration is derived from the
// entry's temporal successor and is never set directly by callers outside
// the store layer.
type Entry struct {
	UUID     uuid.UUID
	Start    int64 // seconds since epoch
	Category string
	Comment  string
	Duration int64 // seconds, or NoSuccessorDuration
	MTime    int64 // milliseconds since epoch
}

// DerivedEntry is the read-side projection returned by queries: an Entry
// plus the start instant of its nearest predecessor (0 if none).
type DerivedEntry struct {
	Entry
	PrecedingStart int64
}

// SyncEntry is the wire form used for import and replica sync: it may
// describe a live record or a tombstone (Valid == false), and always
// carries a modification time.
type SyncEntry struct {
	UUID     uuid.UUID
	Start    int64
	Category string
	Comment  string
	MTime    int64
	Valid    bool // false for a tombstone / removal record
}

// IsTombstone reports whether this record represents a removal rather
// than a live entry.
func (s SyncEntry) IsTombstone() bool {
	return !s.Valid
}

// StartTime returns Start as a UTC time, for callers that prefer time.Time.
func (e Entry) StartTime() time.Time {
	return time.Unix(e.Start, 0).UTC()
}

// FieldMask is a bitset over the attributes that can change on an entry,
// used both to describe an edit request and to describe, after the fact,
// which fields a notification batch actually touched.
type FieldMask uint8

const (
	FieldStartTime FieldMask = 1 << iota
	FieldCategory
	FieldComment
	FieldDurationTime
	FieldPrecedingStart
)

// AllFieldsMask is the mask sync applies when overwriting every editable
// field of a live record.
const AllFieldsMask = FieldStartTime | FieldCategory | FieldComment

// Has reports whether the mask includes field f.
func (m FieldMask) Has(f FieldMask) bool {
	return m&f != 0
}

// UndoKind tags the variant carried by an UndoRecord.
type UndoKind int

const (
	UndoInsert UndoKind = iota
	UndoRemove
	UndoEdit
	UndoEditCategory
)

// UndoRecord is the inverse of a single externally-initiated mutation,
// pushed onto the undo journal once an insert, remove or edit has taken
// effect, or just before the rename for a category edit.
type UndoRecord struct {
	Kind   UndoKind
	Data   []Entry     // one entry for Insert/Remove/Edit, many for EditCategory
	Fields []FieldMask // parallel to Data; unused (nil) for Insert/Remove
}
