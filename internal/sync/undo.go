package sync

import (
	stdsync "sync"

	"github.com/pinwall/boardsync/internal/board"
)

// Entry is one undo/redo record. The set of variants is closed; both replay
// directions switch over it exhaustively, so a new operation kind cannot be
// half-wired.
type Entry interface{ isUndoEntry() }

// positionChange: the item sat at X/Y before the move settled.
type positionChange struct {
	Variant board.Variant
	ID      string
	X, Y    float64
}

// sizeChange: the item measured W/H before the resize settled.
type sizeChange struct {
	Variant board.Variant
	ID      string
	W, H    float64
}

// itemCreate: the item with this id was created; undoing removes it.
type itemCreate struct {
	Variant board.Variant
	ID      string
}

// itemDelete: the item was deleted; Item is its last state, enough to build
// the re-create call. The re-created item gets a fresh server id — the old
// one cannot be resurrected, and anything still holding it is stale.
type itemDelete struct {
	Item board.Item
}

// connectionCreate: a connection was created; undoing deletes it.
type connectionCreate struct {
	ID       string
	From, To string
}

// connectionDelete: a connection was deleted; undoing re-creates the pair.
type connectionDelete struct {
	From, To string
}

// imageAdd / imageDelete mirror itemCreate/itemDelete for image cards, which
// the persistence layer treats as a distinct resource.
type imageAdd struct {
	ID string
}

type imageDelete struct {
	Item board.Item
}

func (positionChange) isUndoEntry()   {}
func (sizeChange) isUndoEntry()       {}
func (itemCreate) isUndoEntry()       {}
func (itemDelete) isUndoEntry()       {}
func (connectionCreate) isUndoEntry() {}
func (connectionDelete) isUndoEntry() {}
func (imageAdd) isUndoEntry()         {}
func (imageDelete) isUndoEntry()      {}

// UndoStack holds the two LIFO stacks. Pushing a new forward action clears
// the redo stack; replaying in either direction moves the mirrored entry to
// the opposite stack (the session does the moving, since building the mirror
// needs current state).
type UndoStack struct {
	mu   stdsync.Mutex
	undo []Entry
	redo []Entry
}

func NewUndoStack() *UndoStack { return &UndoStack{} }

// PushForward records a completed forward mutation and invalidates redo.
func (s *UndoStack) PushForward(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = append(s.undo, e)
	s.redo = nil
}

// PopUndo removes and returns the newest undo entry.
func (s *UndoStack) PopUndo() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.undo) == 0 {
		return nil, false
	}
	e := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	return e, true
}

// PopRedo removes and returns the newest redo entry.
func (s *UndoStack) PopRedo() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redo) == 0 {
		return nil, false
	}
	e := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	return e, true
}

// PushRedo records the mirror of an entry just undone.
func (s *UndoStack) PushRedo(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redo = append(s.redo, e)
}

// PushUndo records the mirror of an entry just redone, without touching the
// redo stack.
func (s *UndoStack) PushUndo(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = append(s.undo, e)
}

func (s *UndoStack) Depths() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo), len(s.redo)
}
