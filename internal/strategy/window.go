// File: internal/strategy/window.go
// ============================================
package strategy

// Window keeps the last capacity quantities, oldest first.
type Window struct {
	values   []int64
	capacity int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{values: make([]int64, 0, capacity), capacity: capacity}
}

func (w *Window) Push(v int64) {
	w.values = append(w.values, v)
	if len(w.values) > w.capacity {
		w.values = w.values[1:]
	}
}

func (w *Window) Len() int { return len(w.values) }

// Average is the integer mean of the window, 0 when empty.
func (w *Window) Average() int64 {
	if len(w.values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range w.values {
		sum += v
	}
	return sum / int64(len(w.values))
}

// Spike reports whether current collapsed to under a third of the
// running average, measured before current is added.
func (w *Window) Spike(current int64) bool {
	if current <= 0 {
		return false
	}
	return w.Average()/current > 3
}
