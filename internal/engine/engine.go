// Package engine wires the per-component collaborators (C1-C9) into the
// control flow described in the architecture overview: load inventory and
// playbook, resolve the host list per play, gather facts, walk the task
// list under the play's strategy, and publish every lifecycle event to the
// bus. This is the only package that constructs a Runner, Scheduler,
// handler.Manager and facts.Pipeline together; cmd/kestrel only builds an
// Engine and the optional bus observers (journal, metrics, tracing,
// grpcapi) around it.
package engine

import (
	"context"
	"fmt"

	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/connection"
	"github.com/kestrelops/kestrel/internal/credentials"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/facts"
	"github.com/kestrelops/kestrel/internal/handler"
	"github.com/kestrelops/kestrel/internal/inventory"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"github.com/kestrelops/kestrel/internal/module"
	"github.com/kestrelops/kestrel/internal/playbook"
	"github.com/kestrelops/kestrel/internal/runner"
	"github.com/kestrelops/kestrel/internal/scheduler"
	"github.com/kestrelops/kestrel/internal/vars"
)

// Options carries the per-run parameters a CLI invocation supplies (the
// `-i`/`-l`/`-e`/`--check`/`--diff`/`--tags` surface of §6).
type Options struct {
	Limit       string // host pattern narrowing the plays' own pattern; empty means no narrowing
	ExtraVars   map[string]any
	Tags        []string
	SkipTags    []string
	CheckMode   bool
	DiffMode    bool
}

// Engine holds the long-lived, run-wide collaborators: inventory, bus,
// connection pool, module registry, and fact pipeline. A new Engine is
// built once per process; RunPlaybook may be called against it repeatedly
// (e.g. by a daemon or test harness).
type Engine struct {
	Config    *config.Config
	Inventory *domain.Inventory
	Bus       *bus.Bus
	Pool      *connection.Pool
	Registry  *module.Registry
	Facts     *facts.Pipeline
}

// New builds an Engine: loads the inventory file, constructs the
// credential resolver, connection pool, module registry and fact
// pipeline. The bus is created empty; callers subscribe their own
// observers (journal, metrics, tracing, grpcapi) before calling
// RunPlaybook.
func New(cfg *config.Config, inventoryPath string) (*Engine, error) {
	inv := domain.NewInventory()
	if err := inventory.LoadFile(inv, inventoryPath); err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassInventory, err)
	}

	credResolver := credentials.NewResolver()
	pool := connection.New(cfg.Pool, cfg.Breaker, cfg.Forks, credResolver)
	registry := module.NewRegistry()

	factsPipeline, err := facts.NewPipeline(cfg.Facts)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConfig, err)
	}

	return &Engine{
		Config:    cfg,
		Inventory: inv,
		Bus:       bus.New(),
		Pool:      pool,
		Registry:  registry,
		Facts:     factsPipeline,
	}, nil
}

// Summary aggregates exit-code-relevant outcome across every play of a run
// (§6 exit codes, §7 user-visible failure recap).
type Summary struct {
	FailedHosts      int
	UnreachableHosts int
	Aborted          bool
}

// ExitCode maps a Summary (and a possible top-level error) to the process
// exit code contract of §6.
func (s *Summary) ExitCode(runErr error) int {
	return kestrelerr.ExitCode(s.FailedHosts > 0, s.UnreachableHosts > 0, runErr)
}

// LoadPlaybook parses a playbook document from path, grounded on the
// module-key/block/loop semantics of internal/playbook.
func LoadPlaybook(path string) (*domain.Playbook, error) {
	pb, err := playbook.LoadFile(path)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassParse, err)
	}
	return pb, nil
}

// RunPlaybook executes every play of pb in order, resolving its host
// pattern against e.Inventory (narrowed by opts.Limit), gathering facts,
// and walking the task list under the play's strategy (§2 control flow,
// §4.5). It stops at the first play whose scheduler run reports a fatal
// error or that aborts (max_fail_percentage/any_errors_fatal), and
// otherwise accumulates a Summary across every play.
func (e *Engine) RunPlaybook(ctx context.Context, pb *domain.Playbook, opts Options) (*Summary, error) {
	summary := &Summary{}

	_ = e.Bus.Publish(ctx, bus.Event{Kind: bus.PlaybookStart})
	defer func() { _ = e.Bus.Publish(ctx, bus.Event{Kind: bus.PlaybookEnd}) }()

	for _, play := range pb.Plays {
		if err := e.runPlay(ctx, play, opts, summary); err != nil {
			return summary, err
		}
		if summary.Aborted {
			break
		}
	}
	return summary, nil
}

func (e *Engine) runPlay(ctx context.Context, play *domain.Play, opts Options, summary *Summary) error {
	hostNames, err := e.resolveHosts(play, opts.Limit)
	if err != nil {
		return kestrelerr.New(kestrelerr.ClassInventory, err)
	}

	_ = e.Bus.Publish(ctx, bus.Event{Kind: bus.PlayStart, Play: play.Name})
	defer func() { _ = e.Bus.Publish(ctx, bus.Event{Kind: bus.PlayEnd, Play: play.Name}) }()

	if len(hostNames) == 0 {
		return nil
	}

	resolver := vars.NewResolver(e.Inventory, e.Config.HashMerge, opts.ExtraVars, e.Facts.Cache())
	handlers := handler.New(play.Handlers, e.Config.IgnoreMissingHandlers)
	taskRunner := runner.New(resolver, e.Registry, e.Pool, e.Bus, e.Inventory, handlers)
	taskRunner.CheckMode = opts.CheckMode
	taskRunner.DiffMode = opts.DiffMode

	states, err := e.buildHostStates(ctx, play, resolver, hostNames)
	if err != nil {
		return err
	}

	filterTaggedTasks(play, opts.Tags, opts.SkipTags)

	sched := scheduler.New(taskRunner, e.Config.Forks)
	result, err := sched.RunPlay(ctx, play, states, handlers)
	if err != nil {
		return kestrelerr.New(kestrelerr.ClassTask, err)
	}

	summary.FailedHosts += result.FailedHosts
	summary.UnreachableHosts += result.UnreachableHosts
	if result.Aborted {
		summary.Aborted = true
	}
	return nil
}

// resolveHosts applies the play's own pattern and, when set, narrows the
// result by opts.Limit (both evaluated through the same host-pattern
// resolver so `-l` composes with `hosts:` the way an intersection would).
func (e *Engine) resolveHosts(play *domain.Play, limit string) ([]string, error) {
	hosts, err := inventory.Resolve(e.Inventory, play.Pattern)
	if err != nil {
		return nil, err
	}
	if limit == "" {
		return hosts, nil
	}
	limited, err := inventory.Resolve(e.Inventory, limit)
	if err != nil {
		return nil, err
	}
	limitSet := make(map[string]bool, len(limited))
	for _, h := range limited {
		limitSet[h] = true
	}
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if limitSet[h] {
			out = append(out, h)
		}
	}
	return out, nil
}

// buildHostStates seeds one runner.HostState per host: its base scope from
// the inventory/play layers, then facts gathered via e.Facts (skipped
// when play.GatherFacts is false).
func (e *Engine) buildHostStates(ctx context.Context, play *domain.Play, resolver *vars.Resolver, hostNames []string) ([]*runner.HostState, error) {
	states := make([]*runner.HostState, 0, len(hostNames))
	gatherModule, _ := e.Registry.Lookup("gather_facts")

	varsFiles, err := loadPlayVarsFiles(play.VarsFiles)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassParse, err)
	}

	for _, name := range hostNames {
		host, ok := e.Inventory.Hosts[name]
		if !ok {
			return nil, fmt.Errorf("engine: host %q resolved from pattern but absent from inventory", name)
		}
		scope := resolver.BaseScope(name, play)
		if len(varsFiles) > 0 {
			scope = resolver.WithPlayVarsFiles(scope, varsFiles)
		}

		if play.GatherFacts && gatherModule != nil {
			sess, err := e.Pool.Lease(ctx, host)
			if err != nil {
				// Unreachable during fact gathering still produces a host
				// state; the scheduler marks it inactive on its first task.
				states = append(states, &runner.HostState{Host: host, Scope: scope, Active: false})
				_ = e.Bus.Publish(ctx, bus.Event{Kind: bus.HostUnreachable, Host: name})
				continue
			}
			execCtx := module.ExecContext{Context: ctx, Host: host, Session: sess, Pool: e.Pool, CheckMode: false}
			gathered, err := e.Facts.Gather(host, gatherModule, execCtx)
			e.Pool.Release(sess, connection.OutcomeSuccess)
			if err == nil && gathered != nil {
				scope = resolver.WithFacts(scope, gathered)
			}
		}

		states = append(states, runner.NewHostState(host, scope))
	}
	return states, nil
}

// loadPlayVarsFiles loads and merges a play's `vars_files` entries (§3, §4.2
// layer 12), in listed order, later files overriding earlier ones on key
// collision. Shared across hosts since vars_files are never host-specific.
func loadPlayVarsFiles(paths []string) (map[string]any, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	merged := make(map[string]any)
	for _, p := range paths {
		loaded, err := playbook.LoadVarsFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range loaded {
			merged[k] = v
		}
	}
	return merged, nil
}

// filterTaggedTasks applies `--tags`/`--skip-tags` to a play's task lists
// in place. Block headers are always kept and their own tags are not
// checked; the filter is applied to the leaf tasks inside block, rescue
// and always, so a block may be left with fewer (or no) nested tasks.
func filterTaggedTasks(play *domain.Play, tags, skipTags []string) {
	if len(tags) == 0 && len(skipTags) == 0 {
		return
	}
	play.PreTasks = filterTasks(play.PreTasks, tags, skipTags)
	play.Tasks = filterTasks(play.Tasks, tags, skipTags)
	play.PostTasks = filterTasks(play.PostTasks, tags, skipTags)
}

func filterTasks(tasks []*domain.Task, tags, skipTags []string) []*domain.Task {
	out := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Block != nil {
			t.Block.Block = filterTasks(t.Block.Block, tags, skipTags)
			t.Block.Rescue = filterTasks(t.Block.Rescue, tags, skipTags)
			t.Block.Always = filterTasks(t.Block.Always, tags, skipTags)
			out = append(out, t)
			continue
		}
		if taskMatchesTags(t, tags, skipTags) {
			out = append(out, t)
		}
	}
	return out
}

func taskMatchesTags(t *domain.Task, tags, skipTags []string) bool {
	for _, skip := range skipTags {
		if hasTag(t.Tags, skip) {
			return false
		}
	}
	if len(tags) == 0 {
		return true
	}
	for _, want := range tags {
		if hasTag(t.Tags, want) {
			return true
		}
	}
	return false
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
