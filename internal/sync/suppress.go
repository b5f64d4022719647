package sync

import (
	stdsync "sync"
	"time"
)

// FieldClass groups item fields that share one suppression window. Position
// covers X/Y, size covers Width/Height. Content-ish fields are never
// suppressed: they change discretely and the last write wins.
type FieldClass string

const (
	ClassPosition FieldClass = "position"
	ClassSize     FieldClass = "size"
)

const (
	defaultPositionWindow = 280 * time.Millisecond
	defaultSizeWindow     = 400 * time.Millisecond
	defaultDeletedTTL     = 2 * time.Second
)

// SuppressionFilter remembers, per item and field class, when this client
// last mutated the field locally. While the window is open, remote values
// for that field class are echoes of our own sends (or older) and must not
// overwrite the fresher local value. Windows are time-based because the hub
// gives no cross-sender ordering to sequence against.
type SuppressionFilter struct {
	mu      stdsync.Mutex
	now     func() time.Time
	windows map[FieldClass]time.Duration

	marks      map[string]map[FieldClass]time.Time
	deleted    map[string]time.Time
	deletedTTL time.Duration
}

func NewSuppressionFilter() *SuppressionFilter {
	return &SuppressionFilter{
		now: time.Now,
		windows: map[FieldClass]time.Duration{
			ClassPosition: defaultPositionWindow,
			ClassSize:     defaultSizeWindow,
		},
		marks:      make(map[string]map[FieldClass]time.Time),
		deleted:    make(map[string]time.Time),
		deletedTTL: defaultDeletedTTL,
	}
}

// SetWindow overrides the suppression window for one field class.
func (f *SuppressionFilter) SetWindow(class FieldClass, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[class] = d
}

// SetClock injects a time source for tests.
func (f *SuppressionFilter) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// MarkLocalMutation opens (or extends) the suppression window for the item's
// field class, timestamped now.
func (f *SuppressionFilter) MarkLocalMutation(itemID string, class FieldClass) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.marks[itemID]
	if m == nil {
		m = make(map[FieldClass]time.Time)
		f.marks[itemID] = m
	}
	m[class] = f.now()
}

// ShouldSuppress reports whether a remote value for the item's field class
// arrived inside the window and must be dropped.
func (f *SuppressionFilter) ShouldSuppress(itemID string, class FieldClass) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.marks[itemID]
	if m == nil {
		return false
	}
	at, ok := m[class]
	if !ok {
		return false
	}
	if f.now().Sub(at) < f.windows[class] {
		return true
	}
	delete(m, class)
	if len(m) == 0 {
		delete(f.marks, itemID)
	}
	return false
}

// MarkDeleted records a local delete so in-flight broadcasts for the item
// cannot resurrect it while the tombstone lives.
func (f *SuppressionFilter) MarkDeleted(itemID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[itemID] = f.now()
	delete(f.marks, itemID)
}

// RecentlyDeleted reports whether the item carries a live tombstone.
func (f *SuppressionFilter) RecentlyDeleted(itemID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.deleted[itemID]
	if !ok {
		return false
	}
	if f.now().Sub(at) < f.deletedTTL {
		return true
	}
	delete(f.deleted, itemID)
	return false
}

// Forget drops all state for an item (e.g. after a remote-confirmed delete).
func (f *SuppressionFilter) Forget(itemID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.marks, itemID)
}
