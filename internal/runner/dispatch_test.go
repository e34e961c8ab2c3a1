package runner

import (
	"context"
	"testing"

	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/handler"
	"github.com/kestrelops/kestrel/internal/module"
	"github.com/kestrelops/kestrel/internal/vars"
)

func testRunner(t *testing.T, handlers []*domain.Handler) (*Runner, *domain.Host) {
	t.Helper()
	inv := domain.NewInventory()
	host := &domain.Host{Name: "web01", Groups: []string{domain.AllGroup}}
	inv.Hosts["web01"] = host
	inv.Groups[domain.AllGroup].Hosts = append(inv.Groups[domain.AllGroup].Hosts, "web01")

	resolver := vars.NewResolver(inv, config.HashMergeReplace, map[string]any{}, nil)
	registry := module.NewRegistry()
	b := bus.New()

	var hm *handler.Manager
	if handlers != nil {
		hm = handler.New(handlers, false)
	}

	return New(resolver, registry, nil, b, inv, hm), host
}

func freshHostState(r *Runner, host *domain.Host) *HostState {
	scope := r.Resolver.BaseScope(host.Name, nil)
	return NewHostState(host, scope)
}

func TestRunTaskSkipsWhenFalse(t *testing.T) {
	r, host := testRunner(t, nil)
	hs := freshHostState(r, host)
	task := &domain.Task{Name: "conditional", Module: "debug", Params: map[string]any{"msg": "hi"}, When: []string{"false"}}

	if err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hs.Active {
		t.Fatal("host should remain active after a skipped task")
	}
}

func TestRunTaskSetFactUpdatesScope(t *testing.T) {
	r, host := testRunner(t, nil)
	hs := freshHostState(r, host)
	task := &domain.Task{Name: "set", Module: "set_fact", Params: map[string]any{"greeting": "hello"}, Register: "greeting_result"}

	if err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	val, ok := hs.Scope.Get("greeting_result")
	if !ok {
		t.Fatal("expected registered value in scope")
	}
	m, ok := val.(map[string]any)
	if !ok || m["changed"] != true {
		t.Fatalf("unexpected registered value: %+v", val)
	}
}

func TestRunTaskAssertFailureDeactivatesHost(t *testing.T) {
	r, host := testRunner(t, nil)
	hs := freshHostState(r, host)
	task := &domain.Task{Name: "check", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}}

	err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, task)
	if err == nil {
		t.Fatal("expected assert failure to propagate")
	}
	if hs.Active {
		t.Fatal("expected host deactivated after unignored failure")
	}
}

func TestRunTaskIgnoreErrorsKeepsHostActive(t *testing.T) {
	r, host := testRunner(t, nil)
	hs := freshHostState(r, host)
	task := &domain.Task{Name: "check", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}, IgnoreErrors: true}

	if err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, task); err != nil {
		t.Fatalf("expected ignore_errors to swallow failure, got %v", err)
	}
	if !hs.Active {
		t.Fatal("expected host to remain active with ignore_errors")
	}
}

func TestRunTaskLoopExpandsIterations(t *testing.T) {
	r, host := testRunner(t, nil)
	hs := freshHostState(r, host)
	task := &domain.Task{
		Name:   "loop debug",
		Module: "debug",
		Params: map[string]any{"msg": "{{ item }}"},
		Loop:   &domain.LoopSource{Kind: "list", List: []any{"a", "b", "c"}},
	}

	if err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunTaskVarsFeedWhenAndParams(t *testing.T) {
	r, host := testRunner(t, nil)
	hs := freshHostState(r, host)
	task := &domain.Task{
		Name:   "task scoped var",
		Module: "debug",
		Params: map[string]any{"msg": "{{ greeting }}"},
		Vars:   map[string]any{"greeting": "hi from task vars", "enabled": true},
		When:   []string{"enabled"},
	}

	if err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hs.Active {
		t.Fatal("host should remain active")
	}
	if _, ok := hs.Scope.Get("greeting"); ok {
		t.Fatal("task-level vars must not leak into the host's persistent scope")
	}
}

func TestRunTaskNotifiesHandler(t *testing.T) {
	handlers := []*domain.Handler{{Task: &domain.Task{Name: "restart nginx", Module: "debug", Params: map[string]any{"msg": "restarting"}}}}
	r, host := testRunner(t, handlers)
	hs := freshHostState(r, host)
	task := &domain.Task{Name: "set", Module: "set_fact", Params: map[string]any{"x": 1}, Notify: []string{"restart nginx"}}

	if err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runs := r.Handlers.Flush([]string{"web01"})
	if len(runs) != 1 || runs[0].Handler.Task.Name != "restart nginx" {
		t.Fatalf("expected restart nginx to be pending, got %+v", runs)
	}
}

func TestRunBlockRescueRecovers(t *testing.T) {
	r, host := testRunner(t, nil)
	hs := freshHostState(r, host)
	blockTask := &domain.Task{
		Block: &domain.BlockSpec{
			Block:  []*domain.Task{{Name: "boom", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}}},
			Rescue: []*domain.Task{{Name: "recover", Module: "debug", Params: map[string]any{"msg": "recovering"}}},
		},
	}

	if err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, blockTask); err != nil {
		t.Fatalf("expected rescue to recover the block, got %v", err)
	}
	if !hs.Active {
		t.Fatal("expected host active after successful rescue")
	}
}

func TestRunBlockAlwaysRunsOnFailure(t *testing.T) {
	r, host := testRunner(t, nil)
	hs := freshHostState(r, host)
	blockTask := &domain.Task{
		Block: &domain.BlockSpec{
			Block:  []*domain.Task{{Name: "boom", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}}},
			Always: []*domain.Task{{Name: "cleanup", Module: "debug", Params: map[string]any{"msg": "cleanup"}, Register: "cleanup_result"}},
		},
	}

	err := r.RunTask(context.Background(), &domain.Play{Name: "p"}, hs, blockTask)
	if err == nil {
		t.Fatal("expected block failure to propagate when there is no rescue")
	}
	if hs.Active {
		t.Fatal("expected host inactive after unrescued block failure")
	}
	if _, ok := hs.Scope.Get("cleanup_result"); !ok {
		t.Fatal("expected the always task to run after the block failure")
	}
}
