package scheduler

import (
	"sync"

	"github.com/kestrelops/kestrel/internal/runner"
)

// failTracker counts distinct hosts that have failed within a batch so the
// max_fail_percentage/any_errors_fatal checks don't race on every host's
// own HostState.Active field from other hosts' goroutines (§5: "Result
// store... per host, no cross-host lock needed" — this is the one place
// that genuinely needs a cross-host view, so it gets its own lock).
type failTracker struct {
	mu      sync.Mutex
	counted map[*runner.HostState]bool
	failed  int
	fatal   bool
}

func newFailTracker() *failTracker {
	return &failTracker{counted: make(map[*runner.HostState]bool)}
}

// record notes hs's post-task status; an inactive host is counted as
// failed only the first time it is recorded, so each host counts once.
func (f *failTracker) record(hs *runner.HostState, anyErrorsFatal bool) {
	if hs.Active {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counted[hs] {
		return
	}
	f.counted[hs] = true
	f.failed++
	if anyErrorsFatal {
		f.fatal = true
	}
}

func (f *failTracker) snapshot() (failed int, fatal bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed, f.fatal
}
