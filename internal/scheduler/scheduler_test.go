package scheduler

import (
	"context"
	"testing"

	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/module"
	"github.com/kestrelops/kestrel/internal/runner"
	"github.com/kestrelops/kestrel/internal/vars"
)

func testScheduler(t *testing.T, forks int, hostNames ...string) (*Scheduler, []*runner.HostState) {
	t.Helper()
	inv := domain.NewInventory()
	var states []*runner.HostState
	resolver := vars.NewResolver(inv, config.HashMergeReplace, map[string]any{}, nil)
	for _, name := range hostNames {
		h := &domain.Host{Name: name, Groups: []string{domain.AllGroup}}
		inv.Hosts[name] = h
		inv.Groups[domain.AllGroup].Hosts = append(inv.Groups[domain.AllGroup].Hosts, name)
	}
	for _, name := range hostNames {
		scope := resolver.BaseScope(name, nil)
		states = append(states, runner.NewHostState(inv.Hosts[name], scope))
	}

	rn := runner.New(resolver, module.NewRegistry(), nil, bus.New(), inv, nil)
	return New(rn, forks), states
}

func TestRunPlayLinearAllSucceed(t *testing.T) {
	s, states := testScheduler(t, 2, "web01", "web02", "web03")
	play := &domain.Play{
		Name:     "p",
		Strategy: domain.StrategyLinear,
		Tasks:    []*domain.Task{{Name: "hello", Module: "debug", Params: map[string]any{"msg": "hi"}}},
	}

	result, err := s.RunPlay(context.Background(), play, states, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Aborted || result.FailedHosts != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunPlayLinearMaxFailPercentageAborts(t *testing.T) {
	s, states := testScheduler(t, 4, "web01", "web02", "web03", "web04")
	play := &domain.Play{
		Name:              "p",
		Strategy:          domain.StrategyLinear,
		MaxFailPercentage: 10,
		Tasks:             []*domain.Task{{Name: "boom", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}}},
	}

	result, err := s.RunPlay(context.Background(), play, states, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Aborted {
		t.Fatalf("expected abort when all 4 hosts fail with a 10%% threshold, got %+v", result)
	}
}

func TestRunPlayAnyErrorsFatalAborts(t *testing.T) {
	s, states := testScheduler(t, 2, "web01", "web02")
	play := &domain.Play{
		Name:           "p",
		Strategy:       domain.StrategyLinear,
		AnyErrorsFatal: true,
		Tasks:          []*domain.Task{{Name: "boom", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}}},
	}

	result, err := s.RunPlay(context.Background(), play, states, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Aborted {
		t.Fatalf("expected any_errors_fatal to abort, got %+v", result)
	}
}

func TestRunPlayFreeStrategyRunsIndependently(t *testing.T) {
	s, states := testScheduler(t, 2, "web01", "web02")
	play := &domain.Play{
		Name:     "p",
		Strategy: domain.StrategyFree,
		Tasks:    []*domain.Task{{Name: "hello", Module: "debug", Params: map[string]any{"msg": "hi"}}},
	}

	result, err := s.RunPlay(context.Background(), play, states, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Aborted || result.FailedHosts != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunPlayIgnoreErrorsDoesNotAbort(t *testing.T) {
	s, states := testScheduler(t, 2, "web01", "web02")
	play := &domain.Play{
		Name:              "p",
		Strategy:          domain.StrategyLinear,
		MaxFailPercentage: 10,
		Tasks: []*domain.Task{
			{Name: "boom", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}, IgnoreErrors: true},
		},
	}

	result, err := s.RunPlay(context.Background(), play, states, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Aborted {
		t.Fatalf("ignore_errors should have kept hosts active, got %+v", result)
	}
}
