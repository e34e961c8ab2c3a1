// Package playbook is the YAML surface parser: it turns playbook and
// inventory files into the typed domain.Playbook/domain.Inventory values
// the engine consumes, in the style of the teacher's internal/spec
// FunctionSpec loader (decode-then-convert, a yamlX struct per document
// shape, a ToX method producing the domain type).
package playbook

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/vault"
)

// yamlBecome mirrors domain.Become's YAML surface; `become: true` alone
// enables sudo with no user override, matching the common shorthand.
type yamlBecome struct {
	Become       *bool  `yaml:"become,omitempty"`
	BecomeMethod string `yaml:"become_method,omitempty"`
	BecomeUser   string `yaml:"become_user,omitempty"`
	BecomePasswordVar string `yaml:"become_password_var,omitempty"`
}

func (b yamlBecome) toDomain() *domain.Become {
	if b.Become == nil && b.BecomeMethod == "" && b.BecomeUser == "" {
		return nil
	}
	enabled := b.BecomeMethod != "" || b.BecomeUser != ""
	if b.Become != nil {
		enabled = *b.Become
	}
	method := b.BecomeMethod
	if method == "" {
		method = "sudo"
	}
	return &domain.Become{
		Enabled:     enabled,
		Method:      method,
		User:        b.BecomeUser,
		PasswordRef: b.BecomePasswordVar,
	}
}

type yamlSerial struct {
	raw any
}

func (s *yamlSerial) UnmarshalYAML(value *yaml.Node) error {
	var v any
	if err := value.Decode(&v); err != nil {
		return err
	}
	s.raw = v
	return nil
}

func toSerialSlice(raw any) ([]domain.Serial, error) {
	if raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case int:
		return []domain.Serial{{Count: v}}, nil
	case string:
		return []domain.Serial{parseSerialScalar(v)}, nil
	case []any:
		out := make([]domain.Serial, 0, len(v))
		for _, item := range v {
			switch iv := item.(type) {
			case int:
				out = append(out, domain.Serial{Count: iv})
			case string:
				out = append(out, parseSerialScalar(iv))
			default:
				return nil, fmt.Errorf("playbook: unsupported serial element %T", item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("playbook: unsupported serial value %T", raw)
	}
}

func parseSerialScalar(s string) domain.Serial {
	if n := len(s); n > 0 && s[n-1] == '%' {
		var pct float64
		fmt.Sscanf(s[:n-1], "%f", &pct)
		return domain.Serial{Percent: pct}
	}
	var n int
	fmt.Sscanf(s, "%d", &n)
	return domain.Serial{Count: n}
}

type yamlLoop struct {
	raw any
}

func (l *yamlLoop) UnmarshalYAML(value *yaml.Node) error {
	var v any
	if err := value.Decode(&v); err != nil {
		return err
	}
	l.raw = v
	return nil
}

func toLoopSource(raw any) *domain.LoopSource {
	if raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []any:
		return &domain.LoopSource{Kind: "list", List: v}
	case string:
		return &domain.LoopSource{Kind: "expr", Expr: v}
	default:
		return &domain.LoopSource{Kind: "list", List: []any{v}}
	}
}

type yamlRetry struct {
	Retries int    `yaml:"retries,omitempty"`
	Delay   int    `yaml:"delay,omitempty"` // seconds
	Until   string `yaml:"until,omitempty"`
}

func (r yamlRetry) toDomain() domain.RetryPolicy {
	return domain.RetryPolicy{
		Retries: r.Retries,
		Delay:   time.Duration(r.Delay) * time.Second,
		Until:   r.Until,
	}
}

// yamlTask covers both a plain module task and a block header. Module
// parameters are captured in Extra via yaml.v3's inline map support, since
// the module name itself is a YAML key rather than a fixed field (§6
// "Tasks may use a module name as a key whose value is the parameter
// mapping").
type yamlTask struct {
	Name   string         `yaml:"name,omitempty"`
	Vars   map[string]any `yaml:"vars,omitempty"`
	When   any    `yaml:"when,omitempty"`
	Loop   yamlLoop `yaml:"loop,omitempty"`
	LoopControl struct {
		LoopVar string `yaml:"loop_var,omitempty"`
		Label   string `yaml:"label,omitempty"`
	} `yaml:"loop_control,omitempty"`
	Register    string   `yaml:"register,omitempty"`
	Notify      any      `yaml:"notify,omitempty"`
	ChangedWhen string   `yaml:"changed_when,omitempty"`
	FailedWhen  string   `yaml:"failed_when,omitempty"`
	yamlRetry `yaml:",inline"`
	IgnoreErrors      bool   `yaml:"ignore_errors,omitempty"`
	IgnoreUnreachable bool   `yaml:"ignore_unreachable,omitempty"`
	RunOnce           bool   `yaml:"run_once,omitempty"`
	DelegateTo        string `yaml:"delegate_to,omitempty"`
	DelegateFacts     bool   `yaml:"delegate_facts,omitempty"`
	Throttle          int    `yaml:"throttle,omitempty"`
	Tags              any    `yaml:"tags,omitempty"`
	yamlBecome        `yaml:",inline"`

	Block  []yamlTask `yaml:"block,omitempty"`
	Rescue []yamlTask `yaml:"rescue,omitempty"`
	Always []yamlTask `yaml:"always,omitempty"`

	Extra map[string]yaml.Node `yaml:",inline"`
}

func toStringSlice(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (t yamlTask) toTask() (*domain.Task, error) {
	if len(t.Block) > 0 {
		block, err := toTaskSlice(t.Block)
		if err != nil {
			return nil, err
		}
		rescue, err := toTaskSlice(t.Rescue)
		if err != nil {
			return nil, err
		}
		always, err := toTaskSlice(t.Always)
		if err != nil {
			return nil, err
		}
		return &domain.Task{
			Name: t.Name,
			Vars: t.Vars,
			When: toStringSlice(t.When),
			Block: &domain.BlockSpec{Block: block, Rescue: rescue, Always: always},
		}, nil
	}

	// Every field yamlTask declares has its own yaml tag, so whatever lands
	// in Extra is the module key (§6: "Tasks may use a module name as a key
	// whose value is the parameter mapping").
	var module string
	var params map[string]any
	for key, node := range t.Extra {
		if module != "" {
			return nil, fmt.Errorf("playbook: task %q has multiple module keys (%q and %q)", t.Name, module, key)
		}
		module = key
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("playbook: decode params for module %q: %w", key, err)
		}
		if m, ok := v.(map[string]any); ok {
			params = m
		} else if v == nil {
			params = map[string]any{}
		} else {
			params = map[string]any{"_raw_params": v}
		}
	}
	if module == "" {
		return nil, fmt.Errorf("playbook: task %q has no module key", t.Name)
	}

	return &domain.Task{
		Name:   t.Name,
		Module: module,
		Params: params,
		Vars:   t.Vars,
		When:   toStringSlice(t.When),
		Loop:   toLoopSource(t.Loop.raw),
		LoopControl: domain.LoopControl{
			LoopVar: t.LoopControl.LoopVar,
			Label:   t.LoopControl.Label,
		},
		Register:          t.Register,
		Notify:            toStringSlice(t.Notify),
		ChangedWhen:       t.ChangedWhen,
		FailedWhen:        t.FailedWhen,
		Retry:             t.yamlRetry.toDomain(),
		IgnoreErrors:      t.IgnoreErrors,
		IgnoreUnreachable: t.IgnoreUnreachable,
		RunOnce:           t.RunOnce,
		DelegateTo:        t.DelegateTo,
		DelegateFacts:     t.DelegateFacts,
		Throttle:          t.Throttle,
		Tags:              toStringSlice(t.Tags),
		Become:            t.yamlBecome.toDomain(),
	}, nil
}

func toTaskSlice(tasks []yamlTask) ([]*domain.Task, error) {
	out := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		dt, err := t.toTask()
		if err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, nil
}

func toHandlerSlice(tasks []yamlTask) ([]*domain.Handler, error) {
	dtasks, err := toTaskSlice(tasks)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Handler, 0, len(dtasks))
	for _, dt := range dtasks {
		out = append(out, &domain.Handler{Task: dt})
	}
	return out, nil
}

type yamlPlay struct {
	Name        string            `yaml:"name,omitempty"`
	Hosts       string            `yaml:"hosts"`
	PreTasks    []yamlTask        `yaml:"pre_tasks,omitempty"`
	Tasks       []yamlTask        `yaml:"tasks,omitempty"`
	PostTasks   []yamlTask        `yaml:"post_tasks,omitempty"`
	Handlers    []yamlTask        `yaml:"handlers,omitempty"`
	Roles       []string          `yaml:"roles,omitempty"`
	Vars        map[string]any    `yaml:"vars,omitempty"`
	VarsFiles   []string          `yaml:"vars_files,omitempty"`
	GatherFacts *bool             `yaml:"gather_facts,omitempty"`
	yamlBecome  `yaml:",inline"`
	Serial            yamlSerial `yaml:"serial,omitempty"`
	MaxFailPercentage float64    `yaml:"max_fail_percentage,omitempty"`
	Strategy          string     `yaml:"strategy,omitempty"`
	AnyErrorsFatal    bool       `yaml:"any_errors_fatal,omitempty"`
}

func (p yamlPlay) toPlay() (*domain.Play, error) {
	pre, err := toTaskSlice(p.PreTasks)
	if err != nil {
		return nil, err
	}
	tasks, err := toTaskSlice(p.Tasks)
	if err != nil {
		return nil, err
	}
	post, err := toTaskSlice(p.PostTasks)
	if err != nil {
		return nil, err
	}
	handlers, err := toHandlerSlice(p.Handlers)
	if err != nil {
		return nil, err
	}
	serial, err := toSerialSlice(p.Serial.raw)
	if err != nil {
		return nil, err
	}

	gatherFacts := true
	if p.GatherFacts != nil {
		gatherFacts = *p.GatherFacts
	}

	strategy := domain.StrategyLinear
	switch p.Strategy {
	case "free":
		strategy = domain.StrategyFree
	case "host_pinned":
		strategy = domain.StrategyHostPinned
	}

	become := p.yamlBecome.toDomain()
	playBecome := domain.Become{}
	if become != nil {
		playBecome = *become
	}

	return &domain.Play{
		Name:              p.Name,
		Pattern:           p.Hosts,
		PreTasks:          pre,
		Tasks:             tasks,
		PostTasks:         post,
		Handlers:          handlers,
		Roles:             p.Roles,
		Vars:              p.Vars,
		VarsFiles:         p.VarsFiles,
		GatherFacts:       gatherFacts,
		BecomeDefault:     playBecome,
		Serial:            serial,
		MaxFailPercentage: p.MaxFailPercentage,
		Strategy:          strategy,
		AnyErrorsFatal:    p.AnyErrorsFatal,
	}, nil
}

// Load parses playbook YAML (a top-level list of plays) from r.
func Load(r io.Reader) (*domain.Playbook, error) {
	var plays []yamlPlay
	if err := yaml.NewDecoder(r).Decode(&plays); err != nil {
		return nil, fmt.Errorf("playbook: decode: %w", err)
	}

	out := &domain.Playbook{Plays: make([]*domain.Play, 0, len(plays))}
	for _, p := range plays {
		dp, err := p.toPlay()
		if err != nil {
			return nil, err
		}
		out.Plays = append(out.Plays, dp)
	}
	return out, nil
}

// LoadFile parses a playbook YAML file at path.
func LoadFile(path string) (*domain.Playbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("playbook: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// LoadTasksFile parses a standalone task list file: the same task grammar
// as a play's tasks:, with no play-level wrapper (§4.3 include_tasks).
func LoadTasksFile(path string) ([]*domain.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("playbook: open %s: %w", path, err)
	}
	defer f.Close()

	var tasks []yamlTask
	if err := yaml.NewDecoder(f).Decode(&tasks); err != nil {
		return nil, fmt.Errorf("playbook: decode %s: %w", path, err)
	}
	return toTaskSlice(tasks)
}

// LoadVarsFile parses a flat key/value YAML mapping: the surface both
// `include_vars` and a play's `vars_files` entries load (§4.2 layers 12 and
// 16). A vault-encrypted file is detected and rejected with a clear error
// rather than fed to the YAML decoder, since the engine path has no vault
// password to decrypt it with; `kestrel vault decrypt` is the escape hatch.
func LoadVarsFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("playbook: open %s: %w", path, err)
	}
	if vault.IsVaultFile(raw) {
		return nil, fmt.Errorf("playbook: %s is vault-encrypted; decrypt it first (kestrel vault decrypt)", path)
	}

	var loaded map[string]any
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("playbook: decode %s: %w", path, err)
	}
	return loaded, nil
}
