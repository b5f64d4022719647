package sync

import stdsync "sync"

// Stroke is one contiguous freehand line on a drawing board.
type Stroke struct {
	Points []Point
	Color  string
	Width  float64
}

type Point struct {
	X, Y float64
}

// StrokeHistory is the drawing mode's own undo: a plain LIFO of strokes,
// deliberately separate from the board engine's command stack. No redo.
type StrokeHistory struct {
	mu      stdsync.Mutex
	strokes []Stroke
}

func NewStrokeHistory() *StrokeHistory { return &StrokeHistory{} }

func (h *StrokeHistory) Push(s Stroke) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.strokes = append(h.strokes, s)
}

// Undo removes the newest stroke.
func (h *StrokeHistory) Undo() (Stroke, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.strokes) == 0 {
		return Stroke{}, false
	}
	s := h.strokes[len(h.strokes)-1]
	h.strokes = h.strokes[:len(h.strokes)-1]
	return s, true
}

func (h *StrokeHistory) Strokes() []Stroke {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Stroke, len(h.strokes))
	copy(out, h.strokes)
	return out
}

func (h *StrokeHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.strokes = nil
}
