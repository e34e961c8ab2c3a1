package module

import (
	"fmt"

	"github.com/kestrelops/kestrel/internal/domain"
)

// IncludeTasksModule records the file reference and any inline `vars:` a
// task-file inclusion carries (layer 19, include parameters, §4.2).
// Loading the referenced file and splicing its tasks into the running task
// list is control flow, not a variable binding, so it is handled by the
// runner at the point this task appears (runner.ExpandIncludeTasks) rather
// than here: a module's return value can only contribute Data, never more
// tasks.
type IncludeTasksModule struct{}

func (m *IncludeTasksModule) Name() string                            { return "include_tasks" }
func (m *IncludeTasksModule) Classification() Classification           { return LocalLogic }
func (m *IncludeTasksModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *IncludeTasksModule) Validate(params map[string]any) error {
	if includeFile(params) == "" {
		return fmt.Errorf("include_tasks: requires 'file' (or a bare file path)")
	}
	return nil
}

func (m *IncludeTasksModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	passed, _ := params["vars"].(map[string]any)
	return domain.ModuleResult{Changed: false, Data: passed, Msg: "including " + includeFile(params)}
}
