package scheduler

import (
	"sync"

	"github.com/kestrelops/kestrel/internal/domain"
)

// throttleRegistry hands out per-task semaphores so `throttle: N` caps a
// task's concurrent execution across hosts independent of forks (§4.5).
type throttleRegistry struct {
	mu      sync.Mutex
	buckets map[*domain.Task]chan struct{}
}

func newThrottleRegistry() *throttleRegistry {
	return &throttleRegistry{buckets: make(map[*domain.Task]chan struct{})}
}

// acquire returns a release func for task's throttle token, or a no-op if
// the task sets no throttle.
func (t *throttleRegistry) acquire(task *domain.Task) func() {
	if task.Throttle <= 0 {
		return func() {}
	}
	t.mu.Lock()
	ch, ok := t.buckets[task]
	if !ok {
		ch = make(chan struct{}, task.Throttle)
		t.buckets[task] = ch
	}
	t.mu.Unlock()

	ch <- struct{}{}
	return func() { <-ch }
}
