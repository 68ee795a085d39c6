package contracts

// Window is a ring buffer of recently issued contract ids for one (store, difficulty).
type Window struct {
	ring   []string
	head   int
	size   int
	counts map[string]int
}

// NewWindow creates a window remembering up to capacity issues.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{ring: make([]string, capacity), counts: make(map[string]int)}
}

// Push records an issue, evicting the oldest one when full.
func (w *Window) Push(id string) {
	if w.size == len(w.ring) {
		old := w.ring[w.head]
		if w.counts[old]--; w.counts[old] <= 0 {
			delete(w.counts, old)
		}
	} else {
		w.size++
	}
	w.ring[w.head] = id
	w.head = (w.head + 1) % len(w.ring)
	w.counts[id]++
}

// Recent reports whether id is among the last depth issues.
func (w *Window) Recent(id string, depth int) bool {
	if depth > w.size {
		depth = w.size
	}
	for i := 1; i <= depth; i++ {
		idx := (w.head - i + len(w.ring)) % len(w.ring)
		if w.ring[idx] == id {
			return true
		}
	}
	return false
}

// Count returns how often id appears in the window.
func (w *Window) Count(id string) int {
	return w.counts[id]
}

// Len returns the number of remembered issues.
func (w *Window) Len() int {
	return w.size
}

// EffectiveCooldown is how many recent issues a candidate must be absent from to count as
// fresh: min(poolCount-1, poolCount-needed), clamped to [0, limit].
func EffectiveCooldown(poolCount, needed, limit int) int {
	c := poolCount - 1
	if alt := poolCount - needed; alt < c {
		c = alt
	}
	if c > limit {
		c = limit
	}
	if c < 0 {
		c = 0
	}
	return c
}
