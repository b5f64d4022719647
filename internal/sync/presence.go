package sync

import (
	"sort"
	stdsync "sync"

	"github.com/pinwall/boardsync/internal/board"
	"github.com/pinwall/boardsync/internal/protocol"
)

// PresenceTracker maps remote users to their live focus/cursor/caret state.
// Membership is authoritative: updates for users not in the current member
// set are stale and ignored, so a cursor frame that outraces a userLeft
// cannot re-materialize a departed user. The local user is never stored —
// their own broadcasts echoed back are not "remote".
type PresenceTracker struct {
	mu      stdsync.Mutex
	selfID  string
	entries map[string]*board.PresenceEntry
}

func NewPresenceTracker(selfID string) *PresenceTracker {
	return &PresenceTracker{
		selfID:  selfID,
		entries: make(map[string]*board.PresenceEntry),
	}
}

// ApplySnapshot replaces membership wholesale. Users still present keep
// their focus/cursor/caret; everyone else is pruned.
func (p *PresenceTracker) ApplySnapshot(members []protocol.PresenceMember) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make(map[string]*board.PresenceEntry, len(members))
	for _, m := range members {
		if m.UserID == p.selfID {
			continue
		}
		if prev, ok := p.entries[m.UserID]; ok {
			prev.Color = m.Color
			next[m.UserID] = prev
			continue
		}
		next[m.UserID] = &board.PresenceEntry{UserID: m.UserID, Color: m.Color}
	}
	p.entries = next
}

// SetFocus replaces the user's focus target; empty itemID clears it. A user
// focuses at most one item.
func (p *PresenceTracker) SetFocus(userID, itemID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		return
	}
	if itemID == "" {
		e.FocusedItemID = nil
		return
	}
	id := itemID
	e.FocusedItemID = &id
}

// SetCursor updates the user's live cursor; negative coordinates are the
// "left the board" sentinel and clear it.
func (p *PresenceTracker) SetCursor(userID string, x, y float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		return
	}
	if x < 0 || y < 0 {
		e.Cursor = nil
		return
	}
	e.Cursor = &board.CursorPos{X: x, Y: y}
}

// SetCaret updates the user's text caret; a negative offset clears it.
func (p *PresenceTracker) SetCaret(userID, itemID string, field board.Field, offset int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		return
	}
	if offset < 0 {
		e.Caret = nil
		return
	}
	e.Caret = &board.CaretPos{ItemID: itemID, Field: field, Offset: offset}
}

// UserLeft removes the user immediately, without waiting for the next
// membership snapshot.
func (p *PresenceTracker) UserLeft(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, userID)
}

// DropItemRefs clears any focus or caret pointing at a deleted item.
func (p *PresenceTracker) DropItemRefs(itemID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.FocusedItemID != nil && *e.FocusedItemID == itemID {
			e.FocusedItemID = nil
		}
		if e.Caret != nil && e.Caret.ItemID == itemID {
			e.Caret = nil
		}
	}
}

// Entries returns a sorted copy of the remote presence set.
func (p *PresenceTracker) Entries() []board.PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]board.PresenceEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Has reports whether the user is a current member.
func (p *PresenceTracker) Has(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[userID]
	return ok
}
