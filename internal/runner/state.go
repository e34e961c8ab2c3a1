// Package runner implements the host task runner (C4): evaluates `when`,
// expands loops, dispatches to a module, interprets the result, and
// carries out register/notify/retry/block-rescue-always semantics for one
// task against one host (§4.4).
package runner

import (
	"github.com/kestrelops/kestrel/internal/bus"
	"github.com/kestrelops/kestrel/internal/connection"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/handler"
	"github.com/kestrelops/kestrel/internal/module"
	"github.com/kestrelops/kestrel/internal/vars"
)

// HostState tracks one host's mutable progress through a play: its current
// scope snapshot and active/failed/unreachable status. The scheduler owns
// one HostState per host and hands it to the Runner for each task.
type HostState struct {
	Host   *domain.Host
	Scope  *vars.Scope
	Active bool // false once removed from the batch (failed/unreachable, not ignored)

	LastFailedTask   *domain.Task
	LastFailedResult *domain.ModuleResult
}

// NewHostState seeds a HostState with its base scope.
func NewHostState(host *domain.Host, scope *vars.Scope) *HostState {
	return &HostState{Host: host, Scope: scope, Active: true}
}

// Runner wires together the components a task dispatch needs: the variable
// resolver (C2), module registry (C3), connection pool (C1), handler
// manager (C6) and event bus (C9).
type Runner struct {
	Resolver  *vars.Resolver
	Registry  *module.Registry
	Pool      *connection.Pool
	Bus       *bus.Bus
	Inventory *domain.Inventory
	Handlers  *handler.Manager

	// CheckMode and DiffMode propagate `--check`/`--diff` (§6) into every
	// module's ExecContext. Both default false; the engine sets them after
	// New when a run requested either.
	CheckMode bool
	DiffMode  bool

	runOnce *runOnceTable
}

// New builds a Runner. handlers may be nil for playbook phases with no
// handler flush (e.g. a role with no handlers declared).
func New(resolver *vars.Resolver, registry *module.Registry, pool *connection.Pool, b *bus.Bus, inv *domain.Inventory, handlers *handler.Manager) *Runner {
	return &Runner{
		Resolver:  resolver,
		Registry:  registry,
		Pool:      pool,
		Bus:       b,
		Inventory: inv,
		Handlers:  handlers,
		runOnce:   newRunOnceTable(),
	}
}
