package runner

import (
	"context"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/vars"
)

// runBlock implements block/rescue/always (§4.4). A failure inside Block
// binds ansible_failed_task/ansible_failed_result into scope and runs
// Rescue; Rescue succeeding clears the failure for the block as a whole.
// Always runs unconditionally afterward, regardless of how Block/Rescue
// resolved. A failure that escapes Rescue (or Block when there is no
// Rescue) propagates as the block's own failure once Always has run.
func (r *Runner) runBlock(ctx context.Context, play *domain.Play, hs *HostState, blockTask *domain.Task) error {
	spec := blockTask.Block

	blockErr := r.runChildren(ctx, play, hs, spec.Block)

	if blockErr != nil && len(spec.Rescue) > 0 {
		failedTask, failedResult := hs.LastFailedTask, hs.LastFailedResult
		hs.Active = true // rescue gets a chance even though Block marked the host inactive
		hs.Scope = r.bindFailureVars(hs.Scope, failedTask, failedResult)

		if rescueErr := r.runChildren(ctx, play, hs, spec.Rescue); rescueErr == nil {
			blockErr = nil
		} else {
			blockErr = rescueErr
		}
	}

	if len(spec.Always) > 0 {
		hs.Active = true // always runs regardless of block/rescue outcome
		if alwaysErr := r.runChildren(ctx, play, hs, spec.Always); alwaysErr != nil {
			blockErr = alwaysErr
		}
	}

	hs.Active = blockErr == nil
	return blockErr
}

// runChildren runs a nested task list in declaration order, stopping at
// the first task that deactivates the host (§5: strict per-host ordering).
// An include_tasks task's referenced file is spliced in immediately after
// it, so the rest of the loop processes the included tasks as if they had
// been written inline (§4.3 include_tasks).
func (r *Runner) runChildren(ctx context.Context, play *domain.Play, hs *HostState, tasks []*domain.Task) error {
	for i := 0; i < len(tasks); i++ {
		if !hs.Active {
			return nil
		}
		t := tasks[i]
		if err := r.RunTask(ctx, play, hs, t); err != nil {
			return err
		}
		if !hs.Active {
			return nil
		}

		if t.Block == nil && t.Module == "include_tasks" {
			included, err := ExpandIncludeTasks(hs.Scope, t)
			if err != nil {
				return r.failHost(ctx, play, hs, t, domain.ModuleResult{Failed: true, Msg: err.Error()}, false)
			}
			if len(included) > 0 {
				tasks = append(tasks[:i+1:i+1], append(included, tasks[i+1:]...)...)
			}
		}
	}
	return nil
}

// bindFailureVars binds ansible_failed_task/ansible_failed_result for the
// duration of the rescue block (§4.4).
func (r *Runner) bindFailureVars(s *vars.Scope, failedTask *domain.Task, failedResult *domain.ModuleResult) *vars.Scope {
	taskName := ""
	if failedTask != nil {
		taskName = failedTask.Name
	}
	var resultMap map[string]any
	if failedResult != nil {
		resultMap = resultToMap(*failedResult)
	}
	return r.Resolver.WithBlockVars(s, map[string]any{
		"ansible_failed_task":   taskName,
		"ansible_failed_result": resultMap,
	})
}
