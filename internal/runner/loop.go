package runner

import (
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"github.com/kestrelops/kestrel/internal/vars"
)

// expandLoop resolves a task's LoopSource into concrete iteration values
// against scope (§3 LoopSource, §4.4). A nil loop yields a single nil
// iteration so the caller's loop-iteration machinery handles looped and
// unlooped tasks identically.
func expandLoop(resolver *vars.Resolver, scope *vars.Scope, loop *domain.LoopSource) ([]any, error) {
	if loop == nil {
		return []any{nil}, nil
	}
	switch loop.Kind {
	case "list":
		flat := scope.Flatten()
		items := make([]any, 0, len(loop.List))
		for _, raw := range loop.List {
			rendered, err := vars.RenderAny(raw, flat)
			if err != nil {
				return nil, err
			}
			items = append(items, rendered)
		}
		return items, nil
	case "expr":
		flat := scope.Flatten()
		val, err := vars.Render(loop.Expr, flat)
		if err != nil {
			return nil, err
		}
		return asSlice(val)
	default:
		return nil, kestrelerr.Newf(kestrelerr.ClassValidation, "loop: unknown source kind %q", loop.Kind)
	}
}

func asSlice(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case nil:
		return nil, nil
	default:
		return nil, kestrelerr.Newf(kestrelerr.ClassTemplate, "loop expression did not evaluate to a list (got %T)", v)
	}
}

// loopIterationScope binds loopVar (defaulting to "item") to item, plus
// ansible_loop_var (the loop variable's name) and the 0-based
// ansible_index, within the task's scope layer.
func loopIterationScope(resolver *vars.Resolver, s *vars.Scope, loopVar string, item any, index int) *vars.Scope {
	if loopVar == "" {
		loopVar = "item"
	}
	return resolver.WithTaskVars(s, map[string]any{
		loopVar:           item,
		"ansible_loop_var": loopVar,
		"ansible_index":    index,
	})
}
