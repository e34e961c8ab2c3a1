package runner

import (
	"context"

	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/handler"
)

// runMeta handles the `meta` pseudo-module (§4.3 LocalLogic, §4.6 flush
// point (d): "explicit meta: flush_handlers"). meta has no session, no
// params rendering, and never reaches the module registry; it is pure
// runner control flow, the same way a block header is.
func (r *Runner) runMeta(ctx context.Context, play *domain.Play, hs *HostState, task *domain.Task) error {
	action, _ := task.Params["action"].(string)
	if action == "" {
		action, _ = task.Params["_raw_params"].(string)
	}

	_ = r.Bus.Publish(ctx, bus.Event{Kind: bus.TaskStart, Host: hs.Host.Name, Play: play.Name, Task: task.Name})

	result := domain.ModuleResult{Skipped: true, Msg: "meta: unsupported action " + action}
	if action == "flush_handlers" {
		if err := r.flushAt(ctx, play, hs, handler.FlushExplicit); err != nil {
			return err
		}
		result = domain.ModuleResult{Msg: string(handler.FlushExplicit)}
	}

	_ = r.Bus.Publish(ctx, bus.Event{Kind: bus.TaskResult, Host: hs.Host.Name, Play: play.Name, Task: task.Name, Result: &result})
	return nil
}

// flushAt runs hs's pending notified handlers immediately, scoped to this
// one host rather than the cross-host barrier a phase-boundary flush uses
// (§4.6 flush point (d) is per-task, not per-phase). ResetFlushPoint lets a
// handler notified again after this point fire again at the next flush,
// matching the Idempotence rule's "across distinct flush points" carve-out.
func (r *Runner) flushAt(ctx context.Context, play *domain.Play, hs *HostState, point handler.FlushPoint) error {
	if r.Handlers == nil || !hs.Active {
		return nil
	}
	for _, run := range r.Handlers.Flush([]string{hs.Host.Name}) {
		if err := r.RunTask(ctx, play, hs, run.Handler.Task); err != nil {
			return err
		}
	}
	r.Handlers.ResetFlushPoint()
	return nil
}
