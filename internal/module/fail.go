package module

import "github.com/kestrelops/kestrel/internal/domain"

// FailModule unconditionally fails the task with a message (§4.3
// LocalLogic), used to short-circuit a play from inside a `when`.
type FailModule struct{}

func (m *FailModule) Name() string                              { return "fail" }
func (m *FailModule) Classification() Classification             { return LocalLogic }
func (m *FailModule) ParallelizationHint() ParallelizationHint { return FullyParallel }
func (m *FailModule) Validate(map[string]any) error              { return nil }

func (m *FailModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	msg, _ := params["msg"].(string)
	if msg == "" {
		msg = "Failed as requested"
	}
	return domain.ModuleResult{Failed: true, Msg: msg}
}
