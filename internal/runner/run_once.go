package runner

import (
	"sync"

	"github.com/kestrelops/kestrel/internal/domain"
)

// runOnceTable coordinates `run_once` tasks (§4.4): the first host to reach
// the task executes it; every other host in the batch waits and reuses the
// same result.
type runOnceTable struct {
	mu      sync.Mutex
	entries map[*domain.Task]*runOnceEntry
}

type runOnceEntry struct {
	done   chan struct{}
	result *domain.ModuleResult
	err    error
}

func newRunOnceTable() *runOnceTable {
	return &runOnceTable{entries: make(map[*domain.Task]*runOnceEntry)}
}

// claim returns (entry, true) if the caller is the elected runner for task
// and must call settle when it finishes, or (entry, false) if another host
// already claimed it and the caller should wait on entry.done.
func (t *runOnceTable) claim(task *domain.Task) (*runOnceEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[task]; ok {
		return e, false
	}
	e := &runOnceEntry{done: make(chan struct{})}
	t.entries[task] = e
	return e, true
}

func (e *runOnceEntry) settle(result *domain.ModuleResult, err error) {
	e.result, e.err = result, err
	close(e.done)
}
