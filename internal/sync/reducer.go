package sync

import (
	"sort"
	stdsync "sync"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/protocol"
)

// Reducer owns the in-memory item and connection collections. Everything
// else (throttler, undo stack, presence) reads snapshots and submits
// mutations through these methods; nothing mutates the maps directly.
type Reducer struct {
	mu     stdsync.Mutex
	items  map[string]board.Item
	conns  map[string]board.Connection
	filter *SuppressionFilter
}

func NewReducer(filter *SuppressionFilter) *Reducer {
	return &Reducer{
		items:  make(map[string]board.Item),
		conns:  make(map[string]board.Connection),
		filter: filter,
	}
}

// --- local (optimistic) side ---

// UpsertLocal inserts or replaces an item, synchronously, before any network
// round trip.
func (r *Reducer) UpsertLocal(item board.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
}

// PatchLocal applies a partial mutation to an existing item.
func (r *Reducer) PatchLocal(id string, patch ItemPatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return false
	}
	applyPatch(&item, patch)
	r.items[id] = item
	return true
}

// DeleteLocal removes the item and every connection touching it. Severed
// connections are returned so the caller can delete them from persistence;
// they are gone for good — undoing the item's deletion does not bring them
// back.
func (r *Reducer) DeleteLocal(id string) (item board.Item, severed []board.Connection, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok = r.items[id]
	if !ok {
		return board.Item{}, nil, false
	}
	delete(r.items, id)
	for cid, c := range r.conns {
		if c.Touches(id) {
			severed = append(severed, c)
			delete(r.conns, cid)
		}
	}
	return item, severed, true
}

// ReplaceID swaps a temporary client-issued id for the server-assigned one,
// remapping any connections that already reference it.
func (r *Reducer) ReplaceID(tempID, realID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[tempID]
	if !ok {
		return false
	}
	delete(r.items, tempID)
	item.ID = realID
	r.items[realID] = item
	for cid, c := range r.conns {
		changed := false
		if c.FromItemID == tempID {
			c.FromItemID = realID
			changed = true
		}
		if c.ToItemID == tempID {
			c.ToItemID = realID
			changed = true
		}
		if changed {
			r.conns[cid] = c
		}
	}
	return true
}

func (r *Reducer) AddConnection(c board.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

func (r *Reducer) RemoveConnection(id string) (board.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	return c, ok
}

// --- remote side ---

// MergeRemote folds a broadcast patch in field by field. Fields whose class
// is inside a suppression window are skipped; the rest of the payload still
// applies, so a color change is not lost to a concurrent local drag.
func (r *Reducer) MergeRemote(update protocol.ItemUpdate) bool {
	if r.filter.RecentlyDeleted(update.ID) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[update.ID]
	if !ok {
		return false
	}
	if !r.filter.ShouldSuppress(update.ID, ClassPosition) {
		if update.X != nil {
			item.X = *update.X
		}
		if update.Y != nil {
			item.Y = *update.Y
		}
	}
	if !r.filter.ShouldSuppress(update.ID, ClassSize) {
		if update.Width != nil {
			item.Width = ptr(*update.Width)
		}
		if update.Height != nil {
			item.Height = ptr(*update.Height)
		}
	}
	if update.Title != nil {
		item.Title = ptr(*update.Title)
	}
	if update.Content != nil {
		item.Content = *update.Content
	}
	if update.Color != nil {
		item.Color = ptr(*update.Color)
	}
	if update.Rotation != nil {
		item.Rotation = ptr(*update.Rotation)
	}
	r.items[update.ID] = item
	return true
}

// ApplyRemoteCreate inserts an item created by a peer. Ignored if this
// client just deleted the same id (a racing in-flight broadcast).
func (r *Reducer) ApplyRemoteCreate(item board.Item) bool {
	if r.filter.RecentlyDeleted(item.ID) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return true
}

// ApplyRemoteDelete removes the item and its connections.
func (r *Reducer) ApplyRemoteDelete(id string) (severed []board.Connection, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok = r.items[id]; !ok {
		return nil, false
	}
	delete(r.items, id)
	for cid, c := range r.conns {
		if c.Touches(id) {
			severed = append(severed, c)
			delete(r.conns, cid)
		}
	}
	r.filter.Forget(id)
	return severed, true
}

// Reconcile replaces the collections with a fresh server snapshot. Items in
// preserve that still exist keep their local position/size (the user is mid
// gesture on them); local-only temp items survive; everything else follows
// the server. Returns the ids that vanished server-side so the caller can
// clear dangling presence and editing state.
func (r *Reducer) Reconcile(snap BoardSnapshot, preserve map[string]bool) (vanished []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]board.Item, len(snap.Items))
	for _, item := range snap.Items {
		if preserve[item.ID] {
			if local, ok := r.items[item.ID]; ok {
				item.X = local.X
				item.Y = local.Y
				item.Width = local.Width
				item.Height = local.Height
				item.Content = local.Content
				item.Title = local.Title
			}
		}
		next[item.ID] = item
	}
	for id, item := range r.items {
		if _, ok := next[id]; ok {
			continue
		}
		if isTempID(id) {
			next[id] = item // unsynced optimistic create, keep it visible
			continue
		}
		vanished = append(vanished, id)
	}
	r.items = next

	nextConns := make(map[string]board.Connection, len(snap.Connections))
	for _, c := range snap.Connections {
		nextConns[c.ID] = c
	}
	r.conns = nextConns
	return vanished
}

// --- read side ---

func (r *Reducer) Item(id string) (board.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	return item, ok
}

// Items returns a sorted copy of the collection.
func (r *Reducer) Items() []board.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]board.Item, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Reducer) Connections() []board.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]board.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConnectionBetween finds a connection joining a and b in either order.
func (r *Reducer) ConnectionBetween(a, b string) (board.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.SamePair(a, b) {
			return c, true
		}
	}
	return board.Connection{}, false
}

func applyPatch(item *board.Item, patch ItemPatch) {
	if patch.X != nil {
		item.X = *patch.X
	}
	if patch.Y != nil {
		item.Y = *patch.Y
	}
	if patch.Width != nil {
		item.Width = ptr(*patch.Width)
	}
	if patch.Height != nil {
		item.Height = ptr(*patch.Height)
	}
	if patch.Title != nil {
		item.Title = ptr(*patch.Title)
	}
	if patch.Content != nil {
		item.Content = *patch.Content
	}
	if patch.Color != nil {
		item.Color = ptr(*patch.Color)
	}
	if patch.Rotation != nil {
		item.Rotation = ptr(*patch.Rotation)
	}
}

func ptr[T any](v T) *T { return &v }
