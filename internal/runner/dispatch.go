package runner

import (
	"context"
	"time"

	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/connection"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"github.com/kestrelops/kestrel/internal/module"
	"github.com/kestrelops/kestrel/internal/secret"
	"github.com/kestrelops/kestrel/internal/vars"
)

// RunTask executes one task against one host (§4.4): `when` evaluation,
// loop expansion, module dispatch, retry, changed_when/failed_when
// interpretation, register/notify, and ignore_errors/ignore_unreachable. A
// block header task recurses into runBlock. The returned error is non-nil
// only for a fatal (unignored) failure or unreachability, matching hs.Active
// going false; callers drive the rest of the task list accordingly.
func (r *Runner) RunTask(ctx context.Context, play *domain.Play, hs *HostState, task *domain.Task) error {
	if task.Block != nil {
		return r.runBlock(ctx, play, hs, task)
	}
	if task.Module == "meta" {
		return r.runMeta(ctx, play, hs, task)
	}

	scope := hs.Scope
	if len(task.Vars) > 0 {
		scope = r.Resolver.WithTaskVars(scope, task.Vars)
	}

	ok, err := r.evalWhen(scope, task.When)
	if err != nil {
		return r.failHost(ctx, play, hs, task, domain.ModuleResult{Failed: true, Msg: err.Error()}, false)
	}
	if !ok {
		_ = r.Bus.Publish(ctx, bus.Event{Kind: bus.TaskResult, Host: hs.Host.Name, Play: play.Name, Task: task.Name,
			Result: &domain.ModuleResult{Skipped: true}})
		return nil
	}

	_ = r.Bus.Publish(ctx, bus.Event{Kind: bus.TaskStart, Host: hs.Host.Name, Play: play.Name, Task: task.Name})

	targetHost := hs.Host
	if task.DelegateTo != "" {
		dh, ok := r.Inventory.Hosts[task.DelegateTo]
		if !ok {
			return r.failHost(ctx, play, hs, task,
				domain.ModuleResult{Failed: true, Msg: "delegate_to: host " + task.DelegateTo + " not in inventory"}, false)
		}
		targetHost = dh
	}

	become := effectiveBecome(play, task)
	becomeSecret := resolveBecomeSecret(become, scope)
	if becomeSecret != nil {
		defer becomeSecret.Release()
	}

	iterations, err := expandLoop(r.Resolver, scope, task.Loop)
	if err != nil {
		return r.failHost(ctx, play, hs, task, domain.ModuleResult{Failed: true, Msg: err.Error()}, false)
	}

	runIterations := func() ([]domain.ModuleResult, error) {
		out := make([]domain.ModuleResult, 0, len(iterations))
		for idx, item := range iterations {
			iterScope := scope
			if task.Loop != nil {
				iterScope = loopIterationScope(r.Resolver, scope, task.LoopControl.LoopVar, item, idx)
			}
			res, err := r.dispatchWithRetry(ctx, task, iterScope, targetHost, become, becomeSecret)
			if err != nil {
				return out, err
			}
			out = append(out, res)
		}
		return out, nil
	}

	var iterResults []domain.ModuleResult
	if task.RunOnce {
		entry, elected := r.runOnce.claim(task)
		if elected {
			results, rerr := runIterations()
			if rerr != nil {
				entry.settle(nil, rerr)
			} else {
				combined := combineLoopResults(results)
				entry.settle(&combined, nil)
			}
		}
		<-entry.done
		if entry.err != nil {
			return r.failHost(ctx, play, hs, task, domain.ModuleResult{Failed: true, Msg: entry.err.Error()}, false)
		}
		return r.finishTask(ctx, play, hs, task, *entry.result)
	}

	iterResults, err = runIterations()
	if err != nil {
		return r.failHost(ctx, play, hs, task, domain.ModuleResult{Failed: true, Msg: err.Error()}, false)
	}
	return r.finishTask(ctx, play, hs, task, combineLoopResults(iterResults))
}

// dispatchWithRetry runs one loop iteration through the module, honoring
// `retries`/`delay`/`until` (§3 RetryPolicy, §4.4 MaybeRetry).
func (r *Runner) dispatchWithRetry(ctx context.Context, task *domain.Task, scope *vars.Scope, targetHost *domain.Host, become *domain.Become, becomeSecret *secret.Bytes) (domain.ModuleResult, error) {
	attempts := task.Retry.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var last domain.ModuleResult
	for attempt := 0; attempt < attempts; attempt++ {
		res, err := r.dispatchOnce(ctx, task, scope, targetHost, become, becomeSecret)
		if err != nil {
			return domain.ModuleResult{}, err
		}
		last = res

		satisfied, serr := r.retrySatisfied(task, scope, res)
		if serr != nil {
			return domain.ModuleResult{}, serr
		}
		if satisfied || attempt == attempts-1 {
			return last, nil
		}

		_ = r.Bus.Publish(ctx, bus.Event{Kind: bus.Retry, Host: targetHost.Name, Task: task.Name, Attempt: attempt + 1})
		if task.Retry.Delay > 0 {
			select {
			case <-time.After(task.Retry.Delay):
			case <-ctx.Done():
				return domain.ModuleResult{}, kestrelerr.New(kestrelerr.ClassCancelled, ctx.Err())
			}
		}
	}
	return last, nil
}

// retrySatisfied reports whether the task should stop retrying: the
// explicit `until` expression if set, otherwise "retry while failed".
func (r *Runner) retrySatisfied(task *domain.Task, scope *vars.Scope, res domain.ModuleResult) (bool, error) {
	if task.Retry.Until == "" {
		return !res.Failed, nil
	}
	evalScope := r.Resolver.WithTaskVars(scope, map[string]any{"result": resultToMap(res)})
	return r.Resolver.RenderExpr(evalScope, task.Retry.Until)
}

func (r *Runner) dispatchOnce(ctx context.Context, task *domain.Task, scope *vars.Scope, targetHost *domain.Host, become *domain.Become, becomeSecret *secret.Bytes) (domain.ModuleResult, error) {
	mod, err := r.Registry.Lookup(task.Module)
	if err != nil {
		return domain.ModuleResult{}, kestrelerr.New(kestrelerr.ClassValidation, err)
	}

	params, err := r.Resolver.RenderParams(scope, task.Params)
	if err != nil {
		return domain.ModuleResult{}, kestrelerr.New(kestrelerr.ClassTemplate, err)
	}
	// __scope carries the flattened host scope for modules whose own
	// templating needs a raw mapping rather than a rendered parameter
	// (assert's `that` expressions, template's file body).
	params["__scope"] = scope.Flatten()
	if err := mod.Validate(params); err != nil {
		return domain.ModuleResult{}, kestrelerr.New(kestrelerr.ClassValidation, err)
	}

	execCtx := module.ExecContext{
		Context:      ctx,
		Host:         targetHost,
		Pool:         r.Pool,
		CheckMode:    r.CheckMode,
		DiffMode:     r.DiffMode,
		Become:       become,
		BecomeSecret: becomeSecret,
	}

	if mod.Classification() != module.LocalLogic {
		sess, err := r.Pool.Lease(ctx, targetHost)
		if err != nil {
			return domain.ModuleResult{Unreachable: true, Failed: true, Msg: err.Error()}, nil
		}
		execCtx.Session = sess
		result := mod.Execute(params, execCtx)
		outcome := connection.OutcomeSuccess
		if result.Unreachable {
			outcome = connection.OutcomeFailure
		}
		r.Pool.Release(sess, outcome)
		return result, nil
	}

	return mod.Execute(params, execCtx), nil
}

// evalWhen logically ANDs every expression in when (§3 Task.When).
func (r *Runner) evalWhen(s *vars.Scope, when []string) (bool, error) {
	for _, expr := range when {
		ok, err := r.Resolver.RenderExpr(s, expr)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// finishTask applies changed_when/failed_when, register, notify, and the
// ignore_errors/ignore_unreachable host-status conversion (§4.4).
func (r *Runner) finishTask(ctx context.Context, play *domain.Play, hs *HostState, task *domain.Task, result domain.ModuleResult) error {
	evalScope := r.Resolver.WithTaskVars(hs.Scope, map[string]any{"result": resultToMap(result)})

	if task.ChangedWhen != "" {
		changed, err := r.Resolver.RenderExpr(evalScope, task.ChangedWhen)
		if err != nil {
			result.Failed = true
			result.Msg = "changed_when: " + err.Error()
		} else {
			result.Changed = changed
		}
	}
	if task.FailedWhen != "" {
		failed, err := r.Resolver.RenderExpr(evalScope, task.FailedWhen)
		if err != nil {
			result.Failed = true
			result.Msg = "failed_when: " + err.Error()
		} else {
			result.Failed = failed
		}
	}

	switch task.Module {
	case "set_fact":
		cacheable, _ := task.Params["cacheable"].(bool)
		for k, v := range result.Data {
			if next, err := r.Resolver.Register(hs.Scope, hs.Host.Name, k, v, cacheable); err == nil {
				hs.Scope = next
			}
		}
	case "include_vars":
		if len(result.Data) > 0 {
			hs.Scope = r.Resolver.WithIncludeVars(hs.Scope, result.Data)
		}
	case "include_tasks":
		if len(result.Data) > 0 {
			hs.Scope = r.Resolver.WithIncludeParams(hs.Scope, result.Data)
		}
	}

	if task.Register != "" {
		next, err := r.Resolver.Register(hs.Scope, hs.Host.Name, task.Register, resultToMap(result), false)
		if err == nil {
			hs.Scope = next
		}
	}

	if result.Changed && len(task.Notify) > 0 && r.Handlers != nil {
		if err := r.Handlers.Notify(hs.Host.Name, task.Notify); err != nil {
			result.Failed = true
			result.Msg = err.Error()
		}
	}

	_ = r.Bus.Publish(ctx, bus.Event{Kind: bus.TaskResult, Host: hs.Host.Name, Play: play.Name, Task: task.Name, Result: &result})

	if result.Unreachable {
		if task.IgnoreUnreachable {
			return nil
		}
		_ = r.Bus.Publish(ctx, bus.Event{Kind: bus.HostUnreachable, Host: hs.Host.Name})
		hs.Active = false
		hs.LastFailedTask, hs.LastFailedResult = task, &result
		return kestrelerr.New(kestrelerr.ClassConnection, kestrelerr.ErrUnreachable)
	}
	if result.Failed {
		if task.IgnoreErrors {
			return nil
		}
		hs.Active = false
		hs.LastFailedTask, hs.LastFailedResult = task, &result
		return kestrelerr.Newf(kestrelerr.ClassTask, "%s", result.Msg)
	}
	return nil
}

// failHost records an internal (pre-dispatch) failure such as a template
// error in `when` or an unresolvable delegate_to host.
func (r *Runner) failHost(ctx context.Context, play *domain.Play, hs *HostState, task *domain.Task, result domain.ModuleResult, unreachable bool) error {
	result.Unreachable = unreachable
	return r.finishTask(ctx, play, hs, task, result)
}
