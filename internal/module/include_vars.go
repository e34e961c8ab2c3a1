package module

import (
	"fmt"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/playbook"
)

// IncludeVarsModule loads a YAML file's top-level mapping into the include
// vars layer (layer 16, §4.2). Like SetFactModule, Execute only reads the
// file and hands its contents back as Data; the runner's finishTask applies
// them to scope so every module's result flows through the same path.
type IncludeVarsModule struct{}

func (m *IncludeVarsModule) Name() string                            { return "include_vars" }
func (m *IncludeVarsModule) Classification() Classification           { return LocalLogic }
func (m *IncludeVarsModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *IncludeVarsModule) Validate(params map[string]any) error {
	if includeFile(params) == "" {
		return fmt.Errorf("include_vars: requires 'file' (or a bare file path)")
	}
	return nil
}

func (m *IncludeVarsModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	path := includeFile(params)
	loaded, err := playbook.LoadVarsFile(path)
	if err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}
	return domain.ModuleResult{Changed: false, Data: loaded, Msg: "loaded " + path}
}

// includeFile extracts the target path from either `file: path` or the
// bare-scalar form `include_vars: path.yml`, which the playbook loader
// captures as `_raw_params` (§6 "Tasks may use a module name as a key whose
// value is the parameter mapping").
func includeFile(params map[string]any) string {
	if f, ok := params["file"].(string); ok && f != "" {
		return f
	}
	if f, ok := params["_raw_params"].(string); ok {
		return f
	}
	return ""
}
