package sync

import (
	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/protocol"
)

// Undo pops the newest undo entry, replays it against local state and
// persistence, and pushes the mirrored entry onto the redo stack. Empty
// stack is a no-op.
func (s *Session) Undo() {
	e, ok := s.undoStack.PopUndo()
	if !ok {
		return
	}
	mirror, ok := s.applyEntry(e)
	if !ok {
		return
	}
	s.undoStack.PushRedo(mirror)
}

// Redo pops the newest redo entry and replays it, pushing its mirror back
// onto the undo stack without clearing redo.
func (s *Session) Redo() {
	e, ok := s.undoStack.PopRedo()
	if !ok {
		return
	}
	mirror, ok := s.applyEntry(e)
	if !ok {
		return
	}
	s.undoStack.PushUndo(mirror)
}

// KeyContext describes where an undo/redo keystroke landed.
type KeyContext struct {
	InTextInput bool // focus is inside a text input or content-editable
	DrawingMode bool // freehand drawing surface is active
}

// UndoKey routes a global undo keystroke: swallowed inside text inputs,
// handed to the stroke history in drawing mode, otherwise the command stack.
func (s *Session) UndoKey(k KeyContext) {
	if k.InTextInput {
		return
	}
	if k.DrawingMode {
		s.strokes.Undo()
		return
	}
	s.Undo()
}

// RedoKey routes a global redo keystroke. The stroke history has no redo.
func (s *Session) RedoKey(k KeyContext) {
	if k.InTextInput || k.DrawingMode {
		return
	}
	s.Redo()
}

// applyEntry restores the state an entry describes and returns the mirror
// entry that would restore the state we just left. Both Undo and Redo go
// through here; the switch must stay exhaustive over every Entry variant.
// An entry whose target no longer exists (or whose persistence call fails)
// is discarded: ok=false, nothing pushed.
func (s *Session) applyEntry(e Entry) (Entry, bool) {
	switch e := e.(type) {
	case positionChange:
		cur, ok := s.reducer.Item(e.ID)
		if !ok {
			return nil, false
		}
		mirror := positionChange{Variant: e.Variant, ID: e.ID, X: cur.X, Y: cur.Y}
		s.reducer.PatchLocal(e.ID, ItemPatch{X: ptr(e.X), Y: ptr(e.Y)})
		s.filter.MarkLocalMutation(e.ID, ClassPosition)
		s.transport.SendItemUpdated(protocol.ItemUpdate{
			Variant: e.Variant, ID: e.ID, X: ptr(e.X), Y: ptr(e.Y),
		})
		if err := s.store.PatchItem(s.ctx, e.Variant, e.ID, ItemPatch{X: ptr(e.X), Y: ptr(e.Y)}); err != nil {
			s.log.Warn("undo position persist failed, resyncing", zap.Error(err))
			s.Resync()
		}
		return mirror, true

	case sizeChange:
		cur, ok := s.reducer.Item(e.ID)
		if !ok || cur.Width == nil || cur.Height == nil {
			return nil, false
		}
		mirror := sizeChange{Variant: e.Variant, ID: e.ID, W: *cur.Width, H: *cur.Height}
		s.reducer.PatchLocal(e.ID, ItemPatch{Width: ptr(e.W), Height: ptr(e.H)})
		s.filter.MarkLocalMutation(e.ID, ClassSize)
		s.transport.SendItemUpdated(protocol.ItemUpdate{
			Variant: e.Variant, ID: e.ID, Width: ptr(e.W), Height: ptr(e.H),
		})
		if err := s.store.PatchItem(s.ctx, e.Variant, e.ID, ItemPatch{Width: ptr(e.W), Height: ptr(e.H)}); err != nil {
			s.log.Warn("undo size persist failed, resyncing", zap.Error(err))
			s.Resync()
		}
		return mirror, true

	case itemCreate:
		item, ok := s.removeItem(e.ID)
		if !ok {
			return nil, false
		}
		return itemDelete{Item: item}, true

	case itemDelete:
		created, ok := s.restoreItem(e.Item)
		if !ok {
			return nil, false
		}
		return itemCreate{Variant: created.Variant, ID: created.ID}, true

	case connectionCreate:
		if _, ok := s.reducer.RemoveConnection(e.ID); !ok {
			return nil, false
		}
		s.transport.SendConnectionDeleted(e.ID)
		if err := s.store.DeleteConnection(s.ctx, e.ID); err != nil {
			s.log.Warn("undo connection delete failed, resyncing", zap.Error(err))
			s.Resync()
		}
		return connectionDelete{From: e.From, To: e.To}, true

	case connectionDelete:
		conn, err := s.store.CreateConnection(s.ctx, s.boardID, e.From, e.To)
		if err != nil {
			s.log.Warn("undo connection re-create failed", zap.Error(err))
			return nil, false
		}
		s.reducer.AddConnection(conn)
		s.transport.SendConnectionCreated(conn)
		return connectionCreate{ID: conn.ID, From: e.From, To: e.To}, true

	case imageAdd:
		item, ok := s.removeItem(e.ID)
		if !ok {
			return nil, false
		}
		return imageDelete{Item: item}, true

	case imageDelete:
		created, ok := s.restoreItem(e.Item)
		if !ok {
			return nil, false
		}
		return imageAdd{ID: created.ID}, true

	default:
		s.log.Error("unhandled undo entry", zap.Any("entry", e))
		return nil, false
	}
}

// removeItem deletes an item as part of an undo/redo replay. Connections it
// severs are deleted permanently, same as a forward delete.
func (s *Session) removeItem(id string) (board.Item, bool) {
	item, severed, ok := s.reducer.DeleteLocal(id)
	if !ok {
		return board.Item{}, false
	}
	s.filter.MarkDeleted(id)
	s.throttle.CancelAllFor(id)
	s.presence.DropItemRefs(id)
	s.transport.SendItemDeleted(item.Variant, id)
	for _, c := range severed {
		s.transport.SendConnectionDeleted(c.ID)
	}
	if !isTempID(id) {
		if err := s.store.DeleteItem(s.ctx, item.Variant, id); err != nil {
			s.log.Warn("undo delete persist failed, resyncing", zap.Error(err))
			s.Resync()
		}
	}
	return item, true
}

// restoreItem re-creates a previously deleted item. The persistence layer
// issues a fresh id; the old id stays dead, and connections that pointed at
// it are not restored.
func (s *Session) restoreItem(prior board.Item) (board.Item, bool) {
	prior.ID = ""
	created, err := s.store.CreateItem(s.ctx, prior)
	if err != nil {
		s.log.Warn("undo re-create failed", zap.Error(err))
		return board.Item{}, false
	}
	s.reducer.UpsertLocal(created)
	s.transport.SendItemCreated(created)
	return created, true
}
