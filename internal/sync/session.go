package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/protocol"
)

const tempIDPrefix = "temp-"

func isTempID(id string) bool {
	return len(id) > len(tempIDPrefix) && id[:len(tempIDPrefix)] == tempIDPrefix
}

const cursorThrottleKey = "cursor"

// View is the read-only snapshot handed to the rendering layer.
type View struct {
	Items       []board.Item
	Connections []board.Connection
	Presence    []board.PresenceEntry
}

type gestureOrigin struct {
	x, y float64
}

// Session is one user's engine for one mounted board view: it applies
// gestures optimistically, throttles their network traffic, suppresses the
// echoes of its own broadcasts, and records undo entries. Create one per
// board view and close the transport when the view unmounts; sessions are
// never shared across boards.
//
// Gesture persistence is fire-and-forget (Flush waits for in-flight calls).
// Undo/Redo persist synchronously: building the mirror entry for a re-created
// item needs the server-assigned id.
type Session struct {
	boardID string
	userID  string
	ctx     context.Context
	log     *zap.Logger

	store     Persistence
	transport Transport

	filter    *SuppressionFilter
	reducer   *Reducer
	throttle  *GestureThrottler
	undoStack *UndoStack
	presence  *PresenceTracker
	strokes   *StrokeHistory

	mu      stdsync.Mutex
	drags   map[string]gestureOrigin
	resizes map[string]gestureOrigin
	editing map[string]bool
	linkFrom string

	tempSeq atomic.Int64
	pending stdsync.WaitGroup
}

func NewSession(ctx context.Context, boardID, userID string, store Persistence, transport Transport, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	filter := NewSuppressionFilter()
	return &Session{
		boardID:   boardID,
		userID:    userID,
		ctx:       ctx,
		log:       log.With(zap.String("board_id", boardID), zap.String("user_id", userID)),
		store:     store,
		transport: transport,
		filter:    filter,
		reducer:   NewReducer(filter),
		throttle:  NewGestureThrottler(),
		undoStack: NewUndoStack(),
		presence:  NewPresenceTracker(userID),
		strokes:   NewStrokeHistory(),
		drags:     make(map[string]gestureOrigin),
		resizes:   make(map[string]gestureOrigin),
		editing:   make(map[string]bool),
	}
}

// View returns a copy of the current items, connections and remote presence.
func (s *Session) View() View {
	return View{
		Items:       s.reducer.Items(),
		Connections: s.reducer.Connections(),
		Presence:    s.presence.Entries(),
	}
}

// Strokes exposes the drawing mode's stroke history.
func (s *Session) Strokes() *StrokeHistory { return s.strokes }

// Flush waits for in-flight fire-and-forget persistence calls. Tests and
// shutdown only.
func (s *Session) Flush() { s.pending.Wait() }

// --- create / delete ---

// Create adds an item optimistically under a temporary id (returned) and
// persists it in the background. On success the temp id is swapped for the
// server-assigned one everywhere, peers are notified, and the create becomes
// undo-able. On failure the temp item stays visible but unsynced — the user
// does not lose input.
func (s *Session) Create(variant board.Variant, x, y float64, content string) string {
	w, h := board.DefaultSize(variant)
	return s.createItem(board.Item{
		Variant: variant,
		BoardID: s.boardID,
		X:       x,
		Y:       y,
		Width:   ptr(w),
		Height:  ptr(h),
		Content: content,
	})
}

// AddImage creates an image card pointing at an already-uploaded URL.
func (s *Session) AddImage(url string, x, y float64) string {
	w, h := board.DefaultSize(board.VariantImage)
	return s.createItem(board.Item{
		Variant:  board.VariantImage,
		BoardID:  s.boardID,
		X:        x,
		Y:        y,
		Width:    ptr(w),
		Height:   ptr(h),
		ImageURL: url,
	})
}

func (s *Session) createItem(item board.Item) string {
	item.ID = fmt.Sprintf("%s%d", tempIDPrefix, s.tempSeq.Add(1))
	s.reducer.UpsertLocal(item)
	tempID := item.ID
	variant := item.Variant

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		toCreate := item
		toCreate.ID = ""
		created, err := s.store.CreateItem(s.ctx, toCreate)
		if err != nil {
			s.log.Warn("create failed, keeping unsynced item", zap.String("temp_id", tempID), zap.Error(err))
			return
		}
		if !s.reducer.ReplaceID(tempID, created.ID) {
			// The user deleted the item while the create was in flight; the
			// server copy must go too, and peers never hear about it.
			if err := s.store.DeleteItem(s.ctx, created.Variant, created.ID); err != nil {
				s.log.Warn("rollback of mid-flight create failed", zap.String("id", created.ID), zap.Error(err))
			}
			return
		}
		s.mu.Lock()
		if s.editing[tempID] {
			delete(s.editing, tempID)
			s.editing[created.ID] = true
		}
		if o, ok := s.drags[tempID]; ok {
			delete(s.drags, tempID)
			s.drags[created.ID] = o
		}
		s.mu.Unlock()
		if variant == board.VariantImage {
			s.undoStack.PushForward(imageAdd{ID: created.ID})
		} else {
			s.undoStack.PushForward(itemCreate{Variant: variant, ID: created.ID})
		}
		s.transport.SendItemCreated(created)
	}()
	return tempID
}

// Delete removes the item and all connections touching it, immediately and
// optimistically. The connections are gone for good; undoing the delete
// re-creates only the item, under a new id.
func (s *Session) Delete(id string) {
	item, severed, ok := s.reducer.DeleteLocal(id)
	if !ok {
		return
	}
	s.filter.MarkDeleted(id)
	s.throttle.CancelAllFor(id)
	s.presence.DropItemRefs(id)

	s.mu.Lock()
	delete(s.editing, id)
	delete(s.drags, id)
	delete(s.resizes, id)
	if s.linkFrom == id {
		s.linkFrom = ""
	}
	s.mu.Unlock()

	s.transport.SendItemDeleted(item.Variant, id)
	for _, c := range severed {
		s.transport.SendConnectionDeleted(c.ID)
	}
	if item.Variant == board.VariantImage {
		s.undoStack.PushForward(imageDelete{Item: item})
	} else {
		s.undoStack.PushForward(itemDelete{Item: item})
	}

	if isTempID(id) {
		return // never reached the server
	}
	s.goPersist(func() error {
		return s.store.DeleteItem(s.ctx, item.Variant, id)
	})
}

// --- drag ---

func (s *Session) StartDrag(id string) {
	item, ok := s.reducer.Item(id)
	if !ok {
		return
	}
	s.mu.Lock()
	s.drags[id] = gestureOrigin{x: item.X, y: item.Y}
	s.mu.Unlock()
}

// DragTo applies a position update locally right away, broadcasts at a
// bounded rate, and re-arms the trailing persist.
func (s *Session) DragTo(id string, x, y float64) {
	if !s.reducer.PatchLocal(id, ItemPatch{X: ptr(x), Y: ptr(y)}) {
		return
	}
	s.filter.MarkLocalMutation(id, ClassPosition)
	item, _ := s.reducer.Item(id)
	if s.throttle.ShouldBroadcast(persistKey(ClassPosition, id)) {
		s.transport.SendItemUpdated(protocol.ItemUpdate{
			Variant: item.Variant, ID: id, X: ptr(x), Y: ptr(y),
		})
	}
	s.throttle.SchedulePersist(persistKey(ClassPosition, id), func() {
		s.persistPosition(id)
	})
}

// StopDrag cancels the pending debounce and persists the final position
// immediately, then keeps the suppression window open long enough to absorb
// that call's own echo.
func (s *Session) StopDrag(id string) {
	s.throttle.CancelPersist(persistKey(ClassPosition, id))
	s.mu.Lock()
	origin, had := s.drags[id]
	delete(s.drags, id)
	s.mu.Unlock()
	item, ok := s.reducer.Item(id)
	if !ok {
		return
	}

	s.filter.MarkLocalMutation(id, ClassPosition)
	s.transport.SendItemUpdated(protocol.ItemUpdate{
		Variant: item.Variant, ID: id, X: ptr(item.X), Y: ptr(item.Y),
	})
	if had && (origin.x != item.X || origin.y != item.Y) {
		s.undoStack.PushForward(positionChange{Variant: item.Variant, ID: id, X: origin.x, Y: origin.y})
	}
	if isTempID(id) {
		return
	}
	x, y := item.X, item.Y
	s.goPersist(func() error {
		return s.store.PatchItem(s.ctx, item.Variant, id, ItemPatch{X: ptr(x), Y: ptr(y)})
	})
}

// persistPosition is the debounce-timer body. The item may have been deleted
// after the timer was armed, so existence is re-checked at fire time.
func (s *Session) persistPosition(id string) {
	item, ok := s.reducer.Item(id)
	if !ok || isTempID(id) {
		return
	}
	s.filter.MarkLocalMutation(id, ClassPosition)
	if err := s.store.PatchItem(s.ctx, item.Variant, id, ItemPatch{X: ptr(item.X), Y: ptr(item.Y)}); err != nil {
		s.log.Warn("position persist failed, resyncing", zap.String("item_id", id), zap.Error(err))
		s.Resync()
	}
}

// --- resize ---

func (s *Session) StartResize(id string) {
	item, ok := s.reducer.Item(id)
	if !ok {
		return
	}
	w, h := board.DefaultSize(item.Variant)
	if item.Width != nil {
		w = *item.Width
	}
	if item.Height != nil {
		h = *item.Height
	}
	s.mu.Lock()
	s.resizes[id] = gestureOrigin{x: w, y: h}
	s.mu.Unlock()
}

func (s *Session) ResizeTo(id string, w, h float64) {
	if !s.reducer.PatchLocal(id, ItemPatch{Width: ptr(w), Height: ptr(h)}) {
		return
	}
	s.filter.MarkLocalMutation(id, ClassSize)
	item, _ := s.reducer.Item(id)
	if s.throttle.ShouldBroadcast(persistKey(ClassSize, id)) {
		s.transport.SendItemUpdated(protocol.ItemUpdate{
			Variant: item.Variant, ID: id, Width: ptr(w), Height: ptr(h),
		})
	}
	s.throttle.SchedulePersist(persistKey(ClassSize, id), func() {
		s.persistSize(id)
	})
}

func (s *Session) StopResize(id string) {
	s.throttle.CancelPersist(persistKey(ClassSize, id))
	s.mu.Lock()
	origin, had := s.resizes[id]
	delete(s.resizes, id)
	s.mu.Unlock()
	item, ok := s.reducer.Item(id)
	if !ok || item.Width == nil || item.Height == nil {
		return
	}

	s.filter.MarkLocalMutation(id, ClassSize)
	s.transport.SendItemUpdated(protocol.ItemUpdate{
		Variant: item.Variant, ID: id, Width: item.Width, Height: item.Height,
	})
	if had && (origin.x != *item.Width || origin.y != *item.Height) {
		s.undoStack.PushForward(sizeChange{Variant: item.Variant, ID: id, W: origin.x, H: origin.y})
	}
	if isTempID(id) {
		return
	}
	w, h := *item.Width, *item.Height
	s.goPersist(func() error {
		return s.store.PatchItem(s.ctx, item.Variant, id, ItemPatch{Width: ptr(w), Height: ptr(h)})
	})
}

func (s *Session) persistSize(id string) {
	item, ok := s.reducer.Item(id)
	if !ok || isTempID(id) || item.Width == nil || item.Height == nil {
		return
	}
	s.filter.MarkLocalMutation(id, ClassSize)
	if err := s.store.PatchItem(s.ctx, item.Variant, id, ItemPatch{Width: item.Width, Height: item.Height}); err != nil {
		s.log.Warn("size persist failed, resyncing", zap.String("item_id", id), zap.Error(err))
		s.Resync()
	}
}

// --- content / appearance ---

func (s *Session) StartEdit(id string) {
	item, ok := s.reducer.Item(id)
	if !ok {
		return
	}
	s.mu.Lock()
	s.editing[id] = true
	s.mu.Unlock()
	s.transport.SendFocus(item.Variant, id)
}

// SaveEdit commits a text edit: local state, broadcast, and persistence in
// one step (discrete events are not throttled). Ends the edit and releases
// focus.
func (s *Session) SaveEdit(id string, title *string, content *string) {
	patch := ItemPatch{Title: title, Content: content}
	if !s.reducer.PatchLocal(id, patch) {
		return
	}
	item, _ := s.reducer.Item(id)
	s.mu.Lock()
	delete(s.editing, id)
	s.mu.Unlock()

	s.transport.SendItemUpdated(protocol.ItemUpdate{
		Variant: item.Variant, ID: id, Title: title, Content: content,
	})
	s.transport.SendFocus(item.Variant, "")
	if isTempID(id) {
		return
	}
	s.goPersist(func() error {
		return s.store.PatchItem(s.ctx, item.Variant, id, patch)
	})
}

func (s *Session) ChangeColor(id, color string) {
	s.patchDiscrete(id, ItemPatch{Color: ptr(color)})
}

func (s *Session) ChangeRotation(id string, degrees float64) {
	s.patchDiscrete(id, ItemPatch{Rotation: ptr(degrees)})
}

func (s *Session) patchDiscrete(id string, patch ItemPatch) {
	if !s.reducer.PatchLocal(id, patch) {
		return
	}
	item, _ := s.reducer.Item(id)
	s.transport.SendItemUpdated(protocol.ItemUpdate{
		Variant: item.Variant, ID: id,
		Color: patch.Color, Rotation: patch.Rotation,
	})
	if isTempID(id) {
		return
	}
	s.goPersist(func() error {
		return s.store.PatchItem(s.ctx, item.Variant, id, patch)
	})
}

// --- connections ---

func (s *Session) BeginLink(id string) error {
	if _, ok := s.reducer.Item(id); !ok {
		return ErrItemNotFound
	}
	s.mu.Lock()
	s.linkFrom = id
	s.mu.Unlock()
	return nil
}

// CompleteLink validates locally (self-links, duplicates in either order,
// missing endpoints) before any network call; invalid links are simply not
// created. Valid links are persisted first — the connection id comes from
// the server — then applied and broadcast.
func (s *Session) CompleteLink(toID string) error {
	s.mu.Lock()
	from := s.linkFrom
	s.linkFrom = ""
	s.mu.Unlock()

	if from == "" {
		return ErrNoLinkSource
	}
	if from == toID {
		return ErrSelfConnection
	}
	if _, ok := s.reducer.Item(from); !ok {
		return ErrItemNotFound
	}
	if _, ok := s.reducer.Item(toID); !ok {
		return ErrItemNotFound
	}
	if _, exists := s.reducer.ConnectionBetween(from, toID); exists {
		return ErrDuplicateLink
	}

	conn, err := s.store.CreateConnection(s.ctx, s.boardID, from, toID)
	if err != nil {
		s.log.Warn("connection create failed", zap.Error(err))
		return err
	}
	s.reducer.AddConnection(conn)
	s.transport.SendConnectionCreated(conn)
	s.undoStack.PushForward(connectionCreate{ID: conn.ID, From: from, To: toID})
	return nil
}

func (s *Session) DeleteLink(connID string) {
	conn, ok := s.reducer.RemoveConnection(connID)
	if !ok {
		return
	}
	s.transport.SendConnectionDeleted(connID)
	s.undoStack.PushForward(connectionDelete{From: conn.FromItemID, To: conn.ToItemID})
	s.goPersist(func() error {
		return s.store.DeleteConnection(s.ctx, connID)
	})
}

// --- presence outbound ---

// SendFocus broadcasts which item the local user is focusing; empty id means
// none.
func (s *Session) SendFocus(id string) {
	if id == "" {
		s.transport.SendFocus("", "")
		return
	}
	item, ok := s.reducer.Item(id)
	if !ok {
		return
	}
	s.transport.SendFocus(item.Variant, id)
}

// SendCursor broadcasts the local cursor at a bounded rate. The "left the
// board" sentinel (negative coordinates) always goes out immediately.
func (s *Session) SendCursor(x, y float64) {
	if x < 0 || y < 0 {
		s.transport.SendCursor(-1, -1)
		return
	}
	if !s.throttle.ShouldBroadcast(cursorThrottleKey) {
		return
	}
	s.transport.SendCursor(x, y)
}

func (s *Session) SendTextCursor(id string, field board.Field, offset int) {
	item, ok := s.reducer.Item(id)
	if !ok {
		return
	}
	s.transport.SendTextCursor(item.Variant, id, field, offset)
}

// --- resync ---

// Resync replaces local state with a fresh server snapshot, preserving items
// the user is mid-drag, mid-resize or mid-edit on, and clearing presence and
// editing state for ids the server no longer has.
func (s *Session) Resync() {
	snap, err := s.store.FetchBoardSnapshot(s.ctx, s.boardID)
	if err != nil {
		s.log.Warn("resync fetch failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	preserve := make(map[string]bool, len(s.drags)+len(s.resizes)+len(s.editing))
	for id := range s.drags {
		preserve[id] = true
	}
	for id := range s.resizes {
		preserve[id] = true
	}
	for id := range s.editing {
		preserve[id] = true
	}
	s.mu.Unlock()

	vanished := s.reducer.Reconcile(snap, preserve)
	for _, id := range vanished {
		s.presence.DropItemRefs(id)
		s.throttle.CancelAllFor(id)
		s.mu.Lock()
		delete(s.editing, id)
		delete(s.drags, id)
		delete(s.resizes, id)
		s.mu.Unlock()
	}
}

// --- helpers ---

func (s *Session) goPersist(fn func() error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := fn(); err != nil {
			s.log.Warn("persist failed, resyncing", zap.Error(err))
			s.Resync()
		}
	}()
}
