package module

import (
	"fmt"
	"sync"
)

// Registry maps a module name to its implementation (§4.3). Modules
// register once at engine start; lookups never mutate it afterward.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry returns a Registry pre-populated with the builtin modules.
func NewRegistry() *Registry {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range builtins() {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a module by name.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name()] = m
}

// Lookup returns the module for name, or an error if unregistered.
func (r *Registry) Lookup(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("module %q is not registered", name)
	}
	return m, nil
}

func builtins() []Module {
	return []Module{
		&CommandModule{shell: false},
		&CommandModule{shell: true, moduleName: "shell"},
		&CopyModule{},
		&FileModule{},
		&TemplateModule{},
		&LineInFileModule{},
		&StatModule{},
		&DebugModule{},
		&AssertModule{},
		&FailModule{},
		&PauseModule{},
		&SetFactModule{},
		&GatherFactsModule{},
		&IncludeVarsModule{},
		&IncludeTasksModule{},
	}
}
