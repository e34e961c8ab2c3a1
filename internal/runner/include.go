package runner

import (
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/playbook"
	"github.com/kestrelops/kestrel/internal/vars"
)

// ExpandIncludeTasks resolves one include_tasks task's file reference
// against scope and loads the referenced file's task list (§4.3
// include_tasks). A module's Execute can only return Data, never more
// tasks, so splicing the loaded list into the running task stream is done
// here by the caller (runChildren, or the scheduler's phase loops) right
// after the include_tasks task itself has dispatched normally and pushed
// its `vars:` into the include-parameters layer. A nested include_tasks
// inside the loaded file is left in the returned slice as-is; the caller's
// own loop reaches it in turn and expands it the same way, so nested
// includes get their own dispatch (vars push, bus events) rather than
// being silently flattened away.
func ExpandIncludeTasks(scope *vars.Scope, task *domain.Task) ([]*domain.Task, error) {
	raw, _ := task.Params["file"].(string)
	if raw == "" {
		raw, _ = task.Params["_raw_params"].(string)
	}
	if raw == "" {
		return nil, nil
	}

	path := raw
	if scope != nil {
		if rendered, err := vars.RenderAny(raw, scope.Flatten()); err != nil {
			return nil, err
		} else if s, ok := rendered.(string); ok && s != "" {
			path = s
		}
	}

	return playbook.LoadTasksFile(path)
}
