// Package vars implements the variable-resolution pipeline (C2): the
// twenty-layer precedence ladder of spec §4.2, lazy Jinja-style template
// rendering, and the register/set_fact write path.
package vars

import "github.com/kestrelops/kestrel/internal/config"

// Layer indexes the twenty-layer precedence ladder of spec §4.2, lowest to
// highest. Values are 0-based array indices; higher index always wins.
type Layer int

const (
	LayerRoleDefaults Layer = iota
	LayerInventorySourceGroupVars
	LayerInventoryFileGroupVars
	LayerPlaybookGroupVarsAll
	LayerPlaybookGroupVarsNamed
	LayerInventorySourceHostVars
	LayerInventoryFileHostVars
	LayerPlaybookHostVars
	LayerHostFacts
	LayerPlayVars
	LayerPlayVarsPrompt
	LayerPlayVarsFiles
	LayerRoleVars
	LayerBlockVars
	LayerTaskVars
	LayerIncludeVars
	LayerSetFactAndRegistered
	LayerRoleParameters
	LayerIncludeParameters
	LayerExtraVars
	numLayers
)

// Scope is an immutable layered variable mapping. It is cheap to derive a
// new Scope from an existing one: the layer array is copied (20 pointers)
// but the maps themselves are shared-immutable unless the derived layer is
// the one being overwritten.
type Scope struct {
	layers [numLayers]map[string]any
	merge  config.HashMergePolicy
}

// NewScope returns an empty scope using the given hash-merge policy.
func NewScope(merge config.HashMergePolicy) *Scope {
	return &Scope{merge: merge}
}

// With returns a new Scope with layer replaced or merged with value,
// according to the scope's hash-merge policy. The receiver is not
// mutated, preserving the persistent-snapshot requirement of spec §9.
func (s *Scope) With(layer Layer, value map[string]any) *Scope {
	next := *s
	switch s.merge {
	case config.HashMergeMerge:
		merged := make(map[string]any, len(s.layers[layer])+len(value))
		for k, v := range s.layers[layer] {
			merged[k] = v
		}
		deepMergeInto(merged, value)
		next.layers[layer] = merged
	default: // replace
		cp := make(map[string]any, len(value))
		for k, v := range value {
			cp[k] = v
		}
		next.layers[layer] = cp
	}
	return &next
}

// WithSet returns a new Scope with a single key set at layer, leaving the
// rest of that layer's existing mapping intact (used by register/set_fact,
// which write individual names rather than whole mappings).
func (s *Scope) WithSet(layer Layer, key string, value any) *Scope {
	next := *s
	merged := make(map[string]any, len(s.layers[layer])+1)
	for k, v := range s.layers[layer] {
		merged[k] = v
	}
	merged[key] = value
	next.layers[layer] = merged
	return &next
}

// Get resolves key by walking layers from highest to lowest, returning the
// first match (§4.2: "the highest layer wins"). Under the merge policy,
// mapping values are instead deep-merged across layers as Flatten does.
func (s *Scope) Get(key string) (any, bool) {
	if s.merge == config.HashMergeMerge {
		v, ok := s.Flatten()[key]
		return v, ok
	}
	for l := numLayers - 1; l >= 0; l-- {
		if m := s.layers[l]; m != nil {
			if v, ok := m[key]; ok {
				return v, true
			}
		}
	}
	return nil, false
}

// Flatten materializes the scope into a single mapping for template
// rendering, applying precedence (§4.2). This is the "single materialized
// mapping" the resolver produces for a (host, task) pair.
func (s *Scope) Flatten() map[string]any {
	out := make(map[string]any)
	for l := Layer(0); l < numLayers; l++ {
		if s.merge == config.HashMergeMerge {
			deepMergeInto(out, s.layers[l])
			continue
		}
		for k, v := range s.layers[l] {
			out[k] = v
		}
	}
	return out
}

func deepMergeInto(dst map[string]any, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				merged := make(map[string]any, len(dv))
				for kk, vv := range dv {
					merged[kk] = vv
				}
				deepMergeInto(merged, sv)
				dst[k] = merged
				continue
			}
		}
		dst[k] = v
	}
}
