package sensor

// Window is a fixed-capacity circular buffer of samples; the oldest value is
// overwritten once it is full.
// Not safe for concurrent use; the Aggregator synchronizes access.
type Window struct {
	buf   []float64
	head  int // next write position
	count int
}

// NewWindow creates a window holding up to capacity samples (minimum 1).
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push appends v, overwriting the oldest sample when full.
func (w *Window) Push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Mean returns the arithmetic mean of held samples, or 0 if empty.
func (w *Window) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.buf[i]
	}
	return sum / float64(w.count)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.count
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}
