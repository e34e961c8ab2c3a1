package scheduler

import (
	"context"
	"sync"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/handler"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"github.com/kestrelops/kestrel/internal/runner"
)

// Scheduler walks a play's task list over its matched host list under the
// selected strategy (§4.5).
type Scheduler struct {
	Runner *runner.Runner
	Forks  int
}

// New builds a Scheduler bounded to forks concurrent hosts.
func New(r *runner.Runner, forks int) *Scheduler {
	if forks <= 0 {
		forks = 1
	}
	return &Scheduler{Runner: r, Forks: forks}
}

// Result summarizes a play's outcome for the callback bus / exit-code
// mapping (§6).
type Result struct {
	Aborted        bool
	FailedHosts    int
	UnreachableHosts int
}

// RunPlay executes play's pre_tasks/tasks/post_tasks over states under
// play.Strategy, honoring `serial` batching, throttle, max_fail_percentage
// and any_errors_fatal (§4.5).
func (s *Scheduler) RunPlay(ctx context.Context, play *domain.Play, states []*runner.HostState, handlers *handler.Manager) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hosts := make([]*domain.Host, len(states))
	for i, hs := range states {
		hosts[i] = hs.Host
	}
	byHost := make(map[string]*runner.HostState, len(states))
	for _, hs := range states {
		byHost[hs.Host.Name] = hs
	}

	batches := splitBatches(hosts, play.Serial)
	result := &Result{}
	throttle := newThrottleRegistry()

	for _, batchHosts := range batches {
		batchStates := make([]*runner.HostState, 0, len(batchHosts))
		for _, h := range batchHosts {
			batchStates = append(batchStates, byHost[h.Name])
		}

		tracker := newFailTracker()

		var err error
		switch play.Strategy {
		case domain.StrategyFree:
			err = s.runFree(ctx, play, batchStates, throttle, tracker, handlers)
		default: // Linear and HostPinned share barrier semantics (§4.5)
			err = s.runLinear(ctx, play, batchStates, throttle, tracker, handlers)
		}

		failed, fatal := tracker.snapshot()
		result.FailedHosts += failed
		if err != nil {
			return result, err
		}

		if play.MaxFailPercentage > 0 && failPercentage(failed, len(batchStates)) > play.MaxFailPercentage {
			result.Aborted = true
			cancel()
			return result, nil
		}
		if fatal {
			result.Aborted = true
			cancel()
			return result, nil
		}
	}

	return result, nil
}

// runLinear runs pre_tasks, tasks, and post_tasks for the batch, each under
// a full per-task barrier: every active host finishes task N before any
// starts task N+1 (§4.5 Linear, HostPinned).
func (s *Scheduler) runLinear(ctx context.Context, play *domain.Play, states []*runner.HostState, throttle *throttleRegistry, tracker *failTracker, handlers *handler.Manager) error {
	phases := [][]*domain.Task{play.PreTasks, play.Tasks, play.PostTasks}
	flushPoints := []handler.FlushPoint{handler.FlushAfterPreTasks, handler.FlushAfterTasks, handler.FlushAfterPostTasks}

	for i, original := range phases {
		// A mutable per-phase copy: include_tasks splices into this slice as
		// the loop reaches it, never into the play's own task list.
		tasks := append([]*domain.Task{}, original...)

		for ti := 0; ti < len(tasks); ti++ {
			task := tasks[ti]
			active := activeHosts(states)
			if len(active) == 0 {
				return nil
			}

			s.runBarrier(ctx, play, active, task, throttle, tracker)

			if task.Block == nil && task.Module == "include_tasks" {
				// Linear strategy dispatches one shared task list in lockstep
				// across every host, so the include is resolved once against
				// the batch's first active host rather than per host.
				included, err := runner.ExpandIncludeTasks(active[0].Scope, task)
				if err == nil && len(included) > 0 {
					tasks = append(tasks[:ti+1:ti+1], append(included, tasks[ti+1:]...)...)
				}
			}

			if play.MaxFailPercentage > 0 {
				failed, _ := tracker.snapshot()
				if failPercentage(failed, len(states)) > play.MaxFailPercentage {
					return nil
				}
			}
			if _, fatal := tracker.snapshot(); fatal {
				return nil
			}
		}

		if handlers != nil {
			s.flush(ctx, play, states, handlers, flushPoints[i])
		}
	}
	return nil
}

// runBarrier runs task on every active host concurrently, bounded by
// Forks, and waits for all of them before returning (the Linear barrier).
func (s *Scheduler) runBarrier(ctx context.Context, play *domain.Play, active []*runner.HostState, task *domain.Task, throttle *throttleRegistry, tracker *failTracker) {
	sem := make(chan struct{}, s.Forks)
	var wg sync.WaitGroup
	for _, hs := range active {
		hs := hs
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			release := throttle.acquire(task)
			defer release()
			_ = s.Runner.RunTask(ctx, play, hs, task)
			tracker.record(hs, play.AnyErrorsFatal)
		}()
	}
	wg.Wait()
}

// runFree runs each host's full task list independently with no
// inter-host barrier, bounded by Forks; handler flushes happen locally per
// host at end of play (§4.5 Free).
func (s *Scheduler) runFree(ctx context.Context, play *domain.Play, states []*runner.HostState, throttle *throttleRegistry, tracker *failTracker, handlers *handler.Manager) error {
	sem := make(chan struct{}, s.Forks)
	var wg sync.WaitGroup
	for _, hs := range states {
		hs := hs
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.runHostFull(ctx, play, hs, throttle, tracker)
			if handlers != nil {
				for _, run := range handlers.Flush([]string{hs.Host.Name}) {
					_ = s.Runner.RunTask(ctx, play, hs, run.Handler.Task)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) runHostFull(ctx context.Context, play *domain.Play, hs *runner.HostState, throttle *throttleRegistry, tracker *failTracker) {
	for _, original := range [][]*domain.Task{play.PreTasks, play.Tasks, play.PostTasks} {
		tasks := append([]*domain.Task{}, original...)

		for ti := 0; ti < len(tasks); ti++ {
			task := tasks[ti]
			if !hs.Active {
				tracker.record(hs, play.AnyErrorsFatal)
				return
			}
			release := throttle.acquire(task)
			_ = s.Runner.RunTask(ctx, play, hs, task)
			release()
			tracker.record(hs, play.AnyErrorsFatal)

			if task.Block == nil && task.Module == "include_tasks" && hs.Active {
				included, err := runner.ExpandIncludeTasks(hs.Scope, task)
				if err == nil && len(included) > 0 {
					tasks = append(tasks[:ti+1:ti+1], append(included, tasks[ti+1:]...)...)
				}
			}
		}
	}
}

func (s *Scheduler) flush(ctx context.Context, play *domain.Play, states []*runner.HostState, handlers *handler.Manager, point handler.FlushPoint) {
	hostNames := make([]string, 0, len(states))
	for _, hs := range states {
		if hs.Active {
			hostNames = append(hostNames, hs.Host.Name)
		}
	}
	for _, run := range handlers.Flush(hostNames) {
		targets := make([]*runner.HostState, 0, len(run.Hosts))
		for _, name := range run.Hosts {
			for _, hs := range states {
				if hs.Host.Name == name {
					targets = append(targets, hs)
				}
			}
		}
		s.runBarrier(ctx, play, targets, run.Handler.Task, newThrottleRegistry(), newFailTracker())
	}
	handlers.ResetFlushPoint()
}

func activeHosts(states []*runner.HostState) []*runner.HostState {
	out := make([]*runner.HostState, 0, len(states))
	for _, hs := range states {
		if hs.Active {
			out = append(out, hs)
		}
	}
	return out
}

// ErrAborted is a classified error describing a play-level abort from
// max_fail_percentage or any_errors_fatal (§4.5 Abort semantics). RunPlay
// does not return it; it reports an abort through Result.Aborted.
var ErrAborted = kestrelerr.Newf(kestrelerr.ClassTask, "play aborted")
