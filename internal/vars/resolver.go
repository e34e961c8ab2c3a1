package vars

import (
	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/domain"
)

// FactCacheWriter is implemented by internal/facts cache backends. The
// resolver depends on this narrow interface rather than the facts package
// directly to avoid a back-import (facts consumes vars, not the reverse).
type FactCacheWriter interface {
	Put(host, key string, value any) error
}

// Resolver composes the per-host, per-task Scope from an inventory plus the
// play/task-scoped mappings a runner accumulates as it descends into roles,
// blocks and loop iterations (§4.2).
type Resolver struct {
	inv       *domain.Inventory
	merge     config.HashMergePolicy
	extraVars map[string]any
	cache     FactCacheWriter
}

// NewResolver builds a Resolver bound to an inventory and the run's
// extra-vars mapping (layer 20, highest precedence, set once from CLI
// --extra-vars or -e and never overridden by anything in a playbook).
func NewResolver(inv *domain.Inventory, merge config.HashMergePolicy, extraVars map[string]any, cache FactCacheWriter) *Resolver {
	return &Resolver{inv: inv, merge: merge, extraVars: extraVars, cache: cache}
}

// BaseScope builds the inventory-derived layers (role defaults excluded;
// those are layered in by the runner as roles are entered) for hostName
// within play, applying group vars in ancestor-to-descendant order so a
// child group's value always wins over an ancestor's within the same layer.
func (r *Resolver) BaseScope(hostName string, play *domain.Play) *Scope {
	s := NewScope(r.merge)

	groupVars := map[string]any{}
	for _, gname := range r.inv.GroupsOfHost(hostName) {
		if g, ok := r.inv.Groups[gname]; ok {
			for k, v := range g.Vars {
				groupVars[k] = v
			}
		}
	}
	s = s.With(LayerInventoryFileGroupVars, groupVars)

	if play != nil {
		allVars := map[string]any{}
		if g, ok := r.inv.Groups[domain.AllGroup]; ok {
			for k, v := range g.Vars {
				allVars[k] = v
			}
		}
		s = s.With(LayerPlaybookGroupVarsAll, allVars)
	}

	if h, ok := r.inv.Hosts[hostName]; ok {
		s = s.With(LayerInventoryFileHostVars, h.Vars)
	}

	if play != nil && play.Vars != nil {
		s = s.With(LayerPlayVars, play.Vars)
	}

	s = s.With(LayerExtraVars, r.extraVars)
	return s
}

// WithFacts layers gathered facts (C7) into scope at LayerHostFacts.
func (r *Resolver) WithFacts(s *Scope, facts map[string]any) *Scope {
	return s.With(LayerHostFacts, facts)
}

// WithPlayVarsFiles layers a play's loaded `vars_files` content (§4.2 layer
// 12) into scope. Unlike WithTaskVars and its siblings this is applied once
// per host at scope build time, not re-derived per task.
func (r *Resolver) WithPlayVarsFiles(s *Scope, v map[string]any) *Scope {
	return s.With(LayerPlayVarsFiles, v)
}

// WithRoleDefaults/WithRoleVars/WithBlockVars/WithTaskVars/WithIncludeVars
// push the remaining precedence layers as the runner descends into roles,
// blocks, tasks and includes (§4.2). Each returns a new Scope; the caller
// discards the derived scope on the way back out, giving the persistent
// snapshot semantics spec §9 requires.
func (r *Resolver) WithRoleDefaults(s *Scope, v map[string]any) *Scope  { return s.With(LayerRoleDefaults, v) }
func (r *Resolver) WithRoleVars(s *Scope, v map[string]any) *Scope     { return s.With(LayerRoleVars, v) }
func (r *Resolver) WithBlockVars(s *Scope, v map[string]any) *Scope    { return s.With(LayerBlockVars, v) }
func (r *Resolver) WithTaskVars(s *Scope, v map[string]any) *Scope     { return s.With(LayerTaskVars, v) }
func (r *Resolver) WithIncludeVars(s *Scope, v map[string]any) *Scope  { return s.With(LayerIncludeVars, v) }
func (r *Resolver) WithRoleParams(s *Scope, v map[string]any) *Scope   { return s.With(LayerRoleParameters, v) }
func (r *Resolver) WithIncludeParams(s *Scope, v map[string]any) *Scope {
	return s.With(LayerIncludeParameters, v)
}

// Register implements the `register:`/`set_fact` write path (§4.2): the
// result is bound under name at layer 17 for the rest of the play. When
// cacheable is true (set_fact's cacheable flag) the value is additionally
// persisted to the fact cache so later runs/plays can pick it up without
// re-gathering.
func (r *Resolver) Register(s *Scope, hostName, name string, value any, cacheable bool) (*Scope, error) {
	next := s.WithSet(LayerSetFactAndRegistered, name, value)
	if cacheable && r.cache != nil {
		if err := r.cache.Put(hostName, name, value); err != nil {
			return next, err
		}
	}
	return next, nil
}

// RenderParams renders every templated string in a task's parameter
// mapping against the host's flattened scope, just before dispatch to the
// module (§4.2: "rendering is lazy").
func (r *Resolver) RenderParams(s *Scope, params map[string]any) (map[string]any, error) {
	flat := s.Flatten()
	rendered, err := RenderAny(params, flat)
	if err != nil {
		return nil, err
	}
	out, _ := rendered.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// RenderExpr renders a single boolean/logical expression (used for `when`,
// `changed_when`, `failed_when`, `until`) against the host's flattened
// scope and returns its JS-truthy boolean value.
func (r *Resolver) RenderExpr(s *Scope, expr string) (bool, error) {
	val, err := Render(expr, s.Flatten())
	if err != nil {
		return false, err
	}
	return truthy(val), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
