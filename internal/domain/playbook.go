package domain

import "time"

// Strategy selects the scheduling policy over tasks x hosts (§4.5).
type Strategy string

const (
	StrategyLinear     Strategy = "linear"
	StrategyFree       Strategy = "free"
	StrategyHostPinned Strategy = "host_pinned"
)

// Serial is one element of a play's `serial` batching spec; exactly one of
// Count or Percent is set. An empty Serial means "all hosts, one batch".
type Serial struct {
	Count   int
	Percent float64
}

// Become describes a privilege-escalation request.
type Become struct {
	Enabled bool
	Method  string // sudo | su | doas | pbrun | pfexec | runas | dzdo | ksu
	User    string
	// PasswordRef names a vault/variable holding the escalation password;
	// never the literal password, per §4.1 command-construction contract.
	PasswordRef string
}

// Playbook is an ordered sequence of plays (§3).
type Playbook struct {
	Plays []*Play
}

// Play binds a set of tasks to a host pattern (§3).
type Play struct {
	Name      string
	Pattern   string // host pattern, resolved by C8
	PreTasks  []*Task
	Tasks     []*Task
	PostTasks []*Task
	Handlers  []*Handler
	Roles     []string

	Vars         map[string]any
	VarsFiles    []string
	GatherFacts  bool
	BecomeDefault Become
	Serial       []Serial
	MaxFailPercentage float64 // 0 means unset/unbounded
	Strategy     Strategy
	AnyErrorsFatal bool
}

// RetryPolicy carries a task's retries/delay/until spec (§3, §4.4).
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
	Until   string // expression; empty means "retry while failed"
}

// LoopControl customizes how a task's loop iterations are bound and shown.
type LoopControl struct {
	LoopVar string // defaults to "item"
	Label   string // display-only expression
}

// LoopSource is the raw loop value before expansion: a literal list, a
// variable-reference expression, or a query expression. Expansion happens
// in the host's scope at runner time (C4).
type LoopSource struct {
	Kind string // "list" | "expr"
	List []any
	Expr string
}

// Task is one invocation of one module against each matching host, or a
// block header when Block is non-nil (§3).
type Task struct {
	Name   string
	Module string
	Params map[string]any
	Vars   map[string]any // task-level `vars:`, layer 15 of the precedence ladder (§4.2)

	When   []string // logical AND of expressions
	Loop   *LoopSource
	LoopControl LoopControl

	Register string
	Notify   []string

	ChangedWhen string
	FailedWhen  string

	Retry RetryPolicy

	IgnoreErrors      bool
	IgnoreUnreachable bool
	RunOnce           bool
	DelegateTo        string
	DelegateFacts     bool
	Throttle          int
	Tags              []string
	Become            *Become // nil means inherit play default

	// Block is non-nil when this Task is a block/rescue/always grouping
	// rather than a module invocation. A block Task has Module == "".
	Block *BlockSpec
}

// BlockSpec holds the nested task lists of a block (§3, §4.4).
type BlockSpec struct {
	Block  []*Task
	Rescue []*Task
	Always []*Task
}

// Handler is a task-like entity keyed by name within a play (§3, §4.6).
type Handler struct {
	Task *Task // Task.Name is the handler name used by `notify`
}
