package sync

import (
	stdsync "sync"
	"time"
)

const (
	defaultBroadcastEvery = 60 * time.Millisecond
	defaultPersistAfter   = 120 * time.Millisecond
)

// GestureThrottler converts a high-frequency stream of updates (mouse-move
// driven drags, resizes, cursor motion) into bounded-rate broadcasts and a
// single trailing persist per gesture. Broadcasts are leading-edge rate
// limited; persists are debounced — every update cancels and reschedules the
// timer, so only the final value of a contiguous gesture is written.
type GestureThrottler struct {
	mu             stdsync.Mutex
	now            func() time.Time
	broadcastEvery time.Duration
	persistAfter   time.Duration

	lastSent map[string]time.Time
	timers   map[string]*time.Timer
}

func NewGestureThrottler() *GestureThrottler {
	return &GestureThrottler{
		now:            time.Now,
		broadcastEvery: defaultBroadcastEvery,
		persistAfter:   defaultPersistAfter,
		lastSent:       make(map[string]time.Time),
		timers:         make(map[string]*time.Timer),
	}
}

// SetIntervals overrides both rates; tests run with millisecond windows.
func (t *GestureThrottler) SetIntervals(broadcastEvery, persistAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcastEvery = broadcastEvery
	t.persistAfter = persistAfter
}

// ShouldBroadcast reports whether a send for key is due, and if so records
// it. One message per broadcastEvery per key.
func (t *GestureThrottler) ShouldBroadcast(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastSent[key]
	if ok && t.now().Sub(last) < t.broadcastEvery {
		return false
	}
	t.lastSent[key] = t.now()
	return true
}

// SchedulePersist arms (or re-arms) the trailing persist for key. fn runs on
// the timer goroutine persistAfter after the most recent call; fn itself must
// re-check that the item still exists, since a delete can race the timer.
func (t *GestureThrottler) SchedulePersist(key string, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}
	t.timers[key] = time.AfterFunc(t.persistAfter, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		fn()
	})
}

// CancelPersist stops a pending persist, reporting whether one was armed.
// Used on gesture end (the caller persists immediately instead) and on
// delete (nothing left to persist).
func (t *GestureThrottler) CancelPersist(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// CancelAllFor cancels every pending persist whose key targets the item and
// drops its rate-limit state, so deleted items leave nothing behind.
func (t *GestureThrottler) CancelAllFor(itemID string) {
	t.CancelPersist(persistKey(ClassPosition, itemID))
	t.CancelPersist(persistKey(ClassSize, itemID))
	t.mu.Lock()
	delete(t.lastSent, persistKey(ClassPosition, itemID))
	delete(t.lastSent, persistKey(ClassSize, itemID))
	t.mu.Unlock()
}

func persistKey(class FieldClass, itemID string) string {
	return string(class) + ":" + itemID
}
