package pipeline

import "sync"

// taskRegistry tracks live background runs so recovery can tell an orphaned
// session (in_progress persisted, process restarted) from a genuinely
// running one. Handles self-remove on completion.
type taskRegistry struct {
	mu     sync.Mutex
	nextID uint64
	live   map[uint64]struct{}
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{live: make(map[uint64]struct{})}
}

// add registers a run and returns its completion callback. The callback is
// safe to invoke exactly once, typically via defer.
func (r *taskRegistry) add() (done func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.live[id] = struct{}{}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.live, id)
		r.mu.Unlock()
	}
}

// active reports how many runs are still unfinished.
func (r *taskRegistry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
