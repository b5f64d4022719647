package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/protocol"
)

// fakeStore is an in-memory Persistence that records every call. Set gate to
// make CreateItem block until the channel closes (for temp-id races) and the
// fail* fields to force errors.
type fakeStore struct {
	mu     stdsync.Mutex
	nextID int

	creates     []board.Item
	patches     []patchCall
	deletes     []string
	connCreates []board.Connection
	connDeletes []string
	fetches     int

	snapshot   BoardSnapshot
	gate       chan struct{}
	failCreate error
	failPatch  error
	failDelete error
}

type patchCall struct {
	Variant board.Variant
	ID      string
	Patch   ItemPatch
}

func (f *fakeStore) CreateItem(_ context.Context, item board.Item) (board.Item, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return board.Item{}, f.failCreate
	}
	f.nextID++
	item.ID = fmt.Sprintf("srv-%d", f.nextID)
	f.creates = append(f.creates, item)
	return item, nil
}

func (f *fakeStore) PatchItem(_ context.Context, variant board.Variant, id string, patch ItemPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPatch != nil {
		return f.failPatch
	}
	f.patches = append(f.patches, patchCall{Variant: variant, ID: id, Patch: patch})
	return nil
}

func (f *fakeStore) DeleteItem(_ context.Context, _ board.Variant, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeStore) FetchBoardSnapshot(_ context.Context, _ string) (BoardSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.snapshot, nil
}

func (f *fakeStore) CreateConnection(_ context.Context, boardID, fromID, toID string) (board.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := board.Connection{
		ID:         fmt.Sprintf("conn-%d", f.nextID),
		BoardID:    boardID,
		FromItemID: fromID,
		ToItemID:   toID,
	}
	f.connCreates = append(f.connCreates, c)
	return c, nil
}

func (f *fakeStore) DeleteConnection(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connDeletes = append(f.connDeletes, id)
	return nil
}

func (f *fakeStore) patchCalls() []patchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]patchCall, len(f.patches))
	copy(out, f.patches)
	return out
}

// fakeTransport records outbound sends.
type fakeTransport struct {
	mu       stdsync.Mutex
	updates  []protocol.ItemUpdate
	creates  []board.Item
	deletes  []string
	cursors  []board.CursorPos
	focuses  []string
	connAdds []board.Connection
	connDels []string
	carets   []protocol.TextCursor
}

func (t *fakeTransport) SendItemCreated(item board.Item) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.creates = append(t.creates, item)
}

func (t *fakeTransport) SendItemUpdated(update protocol.ItemUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updates = append(t.updates, update)
}

func (t *fakeTransport) SendItemDeleted(_ board.Variant, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletes = append(t.deletes, id)
}

func (t *fakeTransport) SendConnectionCreated(c board.Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connAdds = append(t.connAdds, c)
}

func (t *fakeTransport) SendConnectionDeleted(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connDels = append(t.connDels, id)
}

func (t *fakeTransport) SendFocus(_ board.Variant, itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focuses = append(t.focuses, itemID)
}

func (t *fakeTransport) SendCursor(x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursors = append(t.cursors, board.CursorPos{X: x, Y: y})
}

func (t *fakeTransport) SendTextCursor(variant board.Variant, itemID string, field board.Field, offset int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.carets = append(t.carets, protocol.TextCursor{Variant: variant, ItemID: itemID, Field: field, Position: offset})
}

func (t *fakeTransport) cursorCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cursors)
}

func (t *fakeTransport) updateCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.updates)
}

func newTestSession(userID string) (*Session, *fakeStore, *fakeTransport) {
	st := &fakeStore{}
	tr := &fakeTransport{}
	s := NewSession(context.Background(), "b1", userID, st, tr, nil)
	return s, st, tr
}

func seedNote(s *Session, id string, x, y float64) board.Item {
	item := board.Item{ID: id, Variant: board.VariantNote, BoardID: "b1", X: x, Y: y, Content: "hi"}
	s.reducer.UpsertLocal(item)
	return item
}

func mustEnvelope(kind protocol.Kind, boardID, senderID string, payload any) protocol.Envelope {
	env, err := protocol.NewEnvelope(kind, boardID, senderID, payload)
	if err != nil {
		panic(err)
	}
	return env
}
