package vars

import (
	"testing"

	"github.com/kestrelops/kestrel/internal/config"
)

func TestScopePrecedence(t *testing.T) {
	s := NewScope(config.HashMergeReplace)
	s = s.With(LayerRoleDefaults, map[string]any{"port": 80, "env": "role"})
	s = s.With(LayerExtraVars, map[string]any{"port": 443})

	v, ok := s.Get("port")
	if !ok || v != 443 {
		t.Fatalf("expected extra-vars layer to win with 443, got %v (ok=%v)", v, ok)
	}
	v, ok = s.Get("env")
	if !ok || v != "role" {
		t.Fatalf("expected role-defaults value to survive when not overridden, got %v", v)
	}
}

func TestScopeWithSetPreservesSiblingKeys(t *testing.T) {
	s := NewScope(config.HashMergeReplace)
	s = s.With(LayerSetFactAndRegistered, map[string]any{"a": 1})
	s = s.WithSet(LayerSetFactAndRegistered, "b", 2)

	if v, _ := s.Get("a"); v != 1 {
		t.Fatalf("expected a=1 to survive WithSet of b, got %v", v)
	}
	if v, _ := s.Get("b"); v != 2 {
		t.Fatalf("expected b=2, got %v", v)
	}
}

func TestScopeImmutability(t *testing.T) {
	base := NewScope(config.HashMergeReplace).With(LayerTaskVars, map[string]any{"x": 1})
	derived := base.WithSet(LayerTaskVars, "y", 2)

	if _, ok := base.Get("y"); ok {
		t.Fatalf("mutating derived scope must not affect base scope")
	}
	if v, _ := derived.Get("x"); v != 1 {
		t.Fatalf("derived scope should still see base layer value, got %v", v)
	}
}

func TestScopeMergePolicyDeepMerges(t *testing.T) {
	s := NewScope(config.HashMergeMerge)
	s = s.With(LayerRoleVars, map[string]any{"nested": map[string]any{"a": 1, "b": 2}})
	s = s.With(LayerTaskVars, map[string]any{"nested": map[string]any{"b": 3, "c": 4}})

	v, _ := s.Get("nested")
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected merged map, got %T", v)
	}
	if m["a"] != 1 || m["b"] != 3 || m["c"] != 4 {
		t.Fatalf("unexpected deep-merge result: %#v", m)
	}
}

func TestScopeFlatten(t *testing.T) {
	s := NewScope(config.HashMergeReplace)
	s = s.With(LayerRoleDefaults, map[string]any{"a": 1})
	s = s.With(LayerPlayVars, map[string]any{"b": 2})

	flat := s.Flatten()
	if flat["a"] != 1 || flat["b"] != 2 {
		t.Fatalf("unexpected flattened scope: %#v", flat)
	}
}
