package engine

import "github.com/sadopc/timetrail/internal/model"

// maxUndoSize bounds the undo journal: once it holds this many records, the
// oldest is dropped to make room for the newest.
const maxUndoSize = 10

// undoStack is a bounded LIFO: push appends at the tail and pop removes from
// the tail, but once the tail grows past maxUndoSize the head is evicted
// instead of refusing the push.
type undoStack struct {
	records []model.UndoRecord
}

func (u *undoStack) push(r model.UndoRecord) {
	u.records = append(u.records, r)
	if len(u.records) > maxUndoSize {
		u.records = u.records[1:]
	}
}

// pop removes and returns the most recently pushed record. The second
// return value is false if the stack is empty.
func (u *undoStack) pop() (model.UndoRecord, bool) {
	if len(u.records) == 0 {
		return model.UndoRecord{}, false
	}
	last := len(u.records) - 1
	r := u.records[last]
	u.records = u.records[:last]
	return r, true
}

func (u *undoStack) clear() {
	u.records = nil
}

func (u *undoStack) len() int {
	return len(u.records)
}
