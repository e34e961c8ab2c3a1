package module

import "testing"

func TestRegistryHasBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"command", "shell", "copy", "file", "template", "lineinfile", "stat", "debug", "assert", "fail", "pause", "set_fact", "gather_facts"} {
		if _, err := r.Lookup(name); err != nil {
			t.Fatalf("expected builtin %q registered: %v", name, err)
		}
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup("does_not_exist"); err == nil {
		t.Fatal("expected error for unregistered module")
	}
}

func TestRegistryRegisterOverrides(t *testing.T) {
	r := NewRegistry()
	r.Register(&DebugModule{})
	m, err := r.Lookup("debug")
	if err != nil {
		t.Fatal(err)
	}
	if m.Name() != "debug" {
		t.Fatalf("got %q", m.Name())
	}
}
