package module

import (
	"fmt"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/vars"
)

// AssertModule fails the task unless every condition expression in
// `that` renders truthy against the host scope (§4.3 LocalLogic).
type AssertModule struct{}

func (m *AssertModule) Name() string                              { return "assert" }
func (m *AssertModule) Classification() Classification             { return LocalLogic }
func (m *AssertModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *AssertModule) Validate(params map[string]any) error {
	if _, ok := params["that"]; !ok {
		return fmt.Errorf("assert: requires 'that'")
	}
	return nil
}

func (m *AssertModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	scope, _ := params["__scope"].(map[string]any)
	conditions := asStringSlice(params["that"])
	failMsg, _ := params["fail_msg"].(string)
	successMsg, _ := params["success_msg"].(string)

	for _, cond := range conditions {
		val, err := vars.Render(cond, scope)
		if err != nil {
			return domain.ModuleResult{Failed: true, Msg: err.Error()}
		}
		if !truthyExport(val) {
			msg := failMsg
			if msg == "" {
				msg = "assertion failed: " + cond
			}
			return domain.ModuleResult{Failed: true, Msg: msg}
		}
	}
	msg := successMsg
	if msg == "" {
		msg = "all assertions passed"
	}
	return domain.ModuleResult{Changed: false, Msg: msg}
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func truthyExport(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != ""
	default:
		return true
	}
}
