// Package module implements the Module contract (C3): idempotent,
// check-mode- and diff-aware units of work dispatched by the runner.
package module

import (
	"context"

	"github.com/kestrelops/kestrel/internal/connection"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/secret"
)

// Classification buckets a module by how it reaches remote state (§4.3).
type Classification int

const (
	LocalLogic Classification = iota
	NativeTransport
	RemoteCommand
)

// ParallelizationHint drives the scheduler's per-task concurrency control
// (§4.3, §4.5).
type ParallelizationHint int

const (
	FullyParallel ParallelizationHint = iota
	HostExclusive
	RateLimited
	GlobalExclusive
)

// ExecContext carries everything a module needs beyond its own params:
// the leased session (nil for LocalLogic modules), check/diff mode flags,
// and the host this invocation targets.
type ExecContext struct {
	Context   context.Context
	Host      *domain.Host
	Session   *connection.Session
	Pool      *connection.Pool
	CheckMode bool
	DiffMode  bool
	Become    *domain.Become

	// BecomeSecret holds the escalation password already resolved from
	// Become.PasswordRef against the host's scope (runner's job, not the
	// module's: modules never see a variable name, only the bytes), nil
	// when Become is nil or carries no password reference.
	BecomeSecret *secret.Bytes
}

// Module is the unit of idempotent work a task dispatches (§4.3).
type Module interface {
	Name() string
	Classification() Classification
	ParallelizationHint() ParallelizationHint
	Validate(params map[string]any) error
	Execute(params map[string]any, ctx ExecContext) domain.ModuleResult
}
