package world

// DeferredQueue holds fire-once actions that run at the start of the next tick.
type DeferredQueue struct {
	pending []func()
}

// Defer schedules fn for the next Drain.
func (q *DeferredQueue) Defer(fn func()) {
	if fn == nil {
		return
	}
	q.pending = append(q.pending, fn)
}

// Drain runs everything queued before the call. Actions deferred while draining wait for the next Drain.
func (q *DeferredQueue) Drain() int {
	batch := q.pending
	q.pending = nil
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Len returns the number of pending actions.
func (q *DeferredQueue) Len() int {
	return len(q.pending)
}
