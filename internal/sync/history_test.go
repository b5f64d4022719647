package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinwall/boardsync/internal/board"
)

func dragNote(s *Session, id string, x, y float64) {
	s.StartDrag(id)
	s.DragTo(id, x, y)
	s.StopDrag(id)
	s.Flush()
}

func TestUndoRedoRoundTripRestoresPosition(t *testing.T) {
	s, _, _ := newTestSession("me")
	seedNote(s, "n1", 10, 10)

	dragNote(s, "n1", 50, 50)

	s.Undo()
	item, _ := s.reducer.Item("n1")
	assert.Equal(t, 10.0, item.X)
	assert.Equal(t, 10.0, item.Y)

	s.Redo()
	item, _ = s.reducer.Item("n1")
	assert.Equal(t, 50.0, item.X)
	assert.Equal(t, 50.0, item.Y)
}

func TestUndoOnEmptyStackIsNoOp(t *testing.T) {
	s, st, _ := newTestSession("me")
	s.Undo()
	s.Redo()
	assert.Empty(t, st.patchCalls())
}

func TestNewForwardActionClearsRedo(t *testing.T) {
	s, _, _ := newTestSession("me")
	seedNote(s, "n1", 0, 0)

	dragNote(s, "n1", 10, 10)
	s.Undo()
	_, redo := s.undoStack.Depths()
	require.Equal(t, 1, redo)

	// Any new forward action invalidates the redo path.
	dragNote(s, "n1", 99, 99)
	_, redo = s.undoStack.Depths()
	assert.Zero(t, redo)

	s.Redo() // must be a no-op
	item, _ := s.reducer.Item("n1")
	assert.Equal(t, 99.0, item.X)
}

func TestUndoDeleteRecreatesUnderFreshID(t *testing.T) {
	s, st, _ := newTestSession("me")
	seedNote(s, "n1", 10, 10)

	s.Delete("n1")
	s.Flush()
	require.Equal(t, []string{"n1"}, st.deletes)

	s.Undo()

	_, ok := s.reducer.Item("n1")
	assert.False(t, ok, "the old id cannot be resurrected")
	revived, ok := s.reducer.Item("srv-1")
	require.True(t, ok)
	assert.Equal(t, 10.0, revived.X)
	assert.Equal(t, "hi", revived.Content)

	// Redo targets the new identity, not the original.
	s.Redo()
	_, ok = s.reducer.Item("srv-1")
	assert.False(t, ok)

	// And a second undo revives it under yet another id.
	s.Undo()
	_, ok = s.reducer.Item("srv-2")
	assert.True(t, ok)
}

func TestUndoCreateDeletesAndRedoRecreates(t *testing.T) {
	s, st, _ := newTestSession("me")

	s.Create(board.VariantNote, 5, 5, "new")
	s.Flush()
	_, ok := s.reducer.Item("srv-1")
	require.True(t, ok)

	s.Undo()
	_, ok = s.reducer.Item("srv-1")
	assert.False(t, ok)
	st.mu.Lock()
	assert.Equal(t, []string{"srv-1"}, st.deletes)
	st.mu.Unlock()

	s.Redo()
	revived, ok := s.reducer.Item("srv-2")
	require.True(t, ok, "redo re-creates at a new id")
	assert.Equal(t, "new", revived.Content)
}

func TestSeveredConnectionsAreNotRestoredByUndo(t *testing.T) {
	s, st, _ := newTestSession("me")
	seedNote(s, "n1", 0, 0)
	seedNote(s, "n2", 1, 1)
	require.NoError(t, s.BeginLink("n1"))
	require.NoError(t, s.CompleteLink("n2"))
	require.Len(t, s.reducer.Connections(), 1)

	s.Delete("n1")
	s.Flush()
	assert.Empty(t, s.reducer.Connections(), "delete severs connections immediately")

	s.Undo() // revives the note, not its connections
	assert.Empty(t, s.reducer.Connections())
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Len(t, st.connCreates, 1, "no connection re-create was attempted")
}

func TestConnectionUndoRedo(t *testing.T) {
	s, st, _ := newTestSession("me")
	seedNote(s, "n1", 0, 0)
	seedNote(s, "n2", 1, 1)
	require.NoError(t, s.BeginLink("n1"))
	require.NoError(t, s.CompleteLink("n2"))

	s.Undo()
	assert.Empty(t, s.reducer.Connections())
	st.mu.Lock()
	assert.Len(t, st.connDeletes, 1)
	st.mu.Unlock()

	s.Redo()
	conns := s.reducer.Connections()
	require.Len(t, conns, 1)
	assert.True(t, conns[0].SamePair("n1", "n2"))
}

func TestDeleteLinkUndoRecreatesPair(t *testing.T) {
	s, _, _ := newTestSession("me")
	seedNote(s, "n1", 0, 0)
	seedNote(s, "n2", 1, 1)
	require.NoError(t, s.BeginLink("n1"))
	require.NoError(t, s.CompleteLink("n2"))
	connID := s.reducer.Connections()[0].ID

	s.DeleteLink(connID)
	s.Flush()
	assert.Empty(t, s.reducer.Connections())

	s.Undo()
	conns := s.reducer.Connections()
	require.Len(t, conns, 1)
	assert.True(t, conns[0].SamePair("n1", "n2"))
	assert.NotEqual(t, connID, conns[0].ID, "re-created connection has a fresh id")
}

func TestUndoResizeRestoresSize(t *testing.T) {
	s, _, _ := newTestSession("me")
	item := seedNote(s, "n1", 0, 0)
	item.Width = ptr(200.0)
	item.Height = ptr(100.0)
	s.reducer.UpsertLocal(item)

	s.StartResize("n1")
	s.ResizeTo("n1", 300, 180)
	s.StopResize("n1")
	s.Flush()

	s.Undo()
	got, _ := s.reducer.Item("n1")
	assert.Equal(t, 200.0, *got.Width)
	assert.Equal(t, 100.0, *got.Height)

	s.Redo()
	got, _ = s.reducer.Item("n1")
	assert.Equal(t, 300.0, *got.Width)
}

func TestImageAddDeleteUndoCycle(t *testing.T) {
	s, _, _ := newTestSession("me")
	s.AddImage("https://img.example/cat.png", 4, 4)
	s.Flush()

	img, ok := s.reducer.Item("srv-1")
	require.True(t, ok)
	require.Equal(t, board.VariantImage, img.Variant)

	s.Undo() // image add → remove
	_, ok = s.reducer.Item("srv-1")
	assert.False(t, ok)

	s.Redo() // back, new id
	revived, ok := s.reducer.Item("srv-2")
	require.True(t, ok)
	assert.Equal(t, board.VariantImage, revived.Variant)
}

func TestUndoKeyRouting(t *testing.T) {
	s, _, _ := newTestSession("me")
	seedNote(s, "n1", 10, 10)
	dragNote(s, "n1", 50, 50)

	// Inside a text input the keystroke belongs to the editor.
	s.UndoKey(KeyContext{InTextInput: true})
	item, _ := s.reducer.Item("n1")
	assert.Equal(t, 50.0, item.X)

	// In drawing mode it targets the stroke history.
	s.Strokes().Push(Stroke{Color: "black", Width: 2})
	s.UndoKey(KeyContext{DrawingMode: true})
	assert.Empty(t, s.Strokes().Strokes())
	item, _ = s.reducer.Item("n1")
	assert.Equal(t, 50.0, item.X)

	// Otherwise it drives the board command stack.
	s.UndoKey(KeyContext{})
	item, _ = s.reducer.Item("n1")
	assert.Equal(t, 10.0, item.X)
}
