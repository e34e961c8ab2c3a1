package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/facts"
	"github.com/kestrelops/kestrel/internal/module"
)

func testEngine(t *testing.T, hostNames ...string) *Engine {
	t.Helper()
	inv := domain.NewInventory()
	for _, name := range hostNames {
		inv.AddHost(&domain.Host{Name: name, Groups: []string{domain.AllGroup}})
	}

	cfg := config.DefaultConfig()
	cfg.Facts.CacheDir = t.TempDir()
	pipeline, err := facts.NewPipeline(cfg.Facts)
	if err != nil {
		t.Fatalf("facts pipeline: %v", err)
	}

	return &Engine{
		Config:    cfg,
		Inventory: inv,
		Bus:       bus.New(),
		Registry:  module.NewRegistry(),
		Facts:     pipeline,
	}
}

func TestRunPlaybookLocalOnlyPlaySucceeds(t *testing.T) {
	e := testEngine(t, "web01", "web02")
	pb := &domain.Playbook{Plays: []*domain.Play{{
		Name:        "say hi",
		Pattern:     "all",
		Strategy:    domain.StrategyLinear,
		GatherFacts: false,
		Tasks: []*domain.Task{
			{Name: "hello", Module: "debug", Params: map[string]any{"msg": "hi"}},
		},
	}}}

	summary, err := e.RunPlaybook(context.Background(), pb, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.FailedHosts != 0 || summary.UnreachableHosts != 0 || summary.Aborted {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.ExitCode(nil) != 0 {
		t.Fatalf("expected exit code 0, got %d", summary.ExitCode(nil))
	}
}

func TestRunPlaybookLimitNarrowsHosts(t *testing.T) {
	e := testEngine(t, "web01", "web02", "db01")
	pb := &domain.Playbook{Plays: []*domain.Play{{
		Name:     "p",
		Pattern:  "all",
		Strategy: domain.StrategyLinear,
		Tasks: []*domain.Task{
			{Name: "record", Module: "debug", Params: map[string]any{"msg": "hi"}},
		},
	}}}

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.Bus.Subscribe(ctx, 64, bus.TaskStart)
	var seen []string
	done := make(chan struct{})
	go func() {
		for ev := range ch {
			seen = append(seen, ev.Host)
		}
		close(done)
	}()

	if _, err := e.RunPlaybook(context.Background(), pb, Options{Limit: "web*"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	<-done

	for _, host := range seen {
		if !strings.HasPrefix(host, "web") {
			t.Fatalf("limit %q let a non-matching host through: %v", "web*", seen)
		}
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 hosts narrowed by limit, got %v", seen)
	}
}

func TestRunPlaybookAssertFailureCountsAsFailedHost(t *testing.T) {
	e := testEngine(t, "web01")
	pb := &domain.Playbook{Plays: []*domain.Play{{
		Name:     "p",
		Pattern:  "all",
		Strategy: domain.StrategyLinear,
		Tasks: []*domain.Task{
			{Name: "boom", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}},
		},
	}}}

	summary, err := e.RunPlaybook(context.Background(), pb, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.FailedHosts != 1 {
		t.Fatalf("expected 1 failed host, got %+v", summary)
	}
	if summary.ExitCode(nil) != 2 {
		t.Fatalf("expected exit code 2, got %d", summary.ExitCode(nil))
	}
}

func TestRunPlaybookTagsFilterTasks(t *testing.T) {
	e := testEngine(t, "web01")
	pb := &domain.Playbook{Plays: []*domain.Play{{
		Name:     "p",
		Pattern:  "all",
		Strategy: domain.StrategyLinear,
		Tasks: []*domain.Task{
			{Name: "keep", Module: "debug", Params: map[string]any{"msg": "hi"}, Tags: []string{"always-run"}},
			{Name: "skip", Module: "assert", Params: map[string]any{"that": []any{"1 == 2"}}, Tags: []string{"slow"}},
		},
	}}}

	summary, err := e.RunPlaybook(context.Background(), pb, Options{Tags: []string{"always-run"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.FailedHosts != 0 {
		t.Fatalf("expected the failing task, tagged only 'slow', to be filtered out, got %+v", summary)
	}
}
