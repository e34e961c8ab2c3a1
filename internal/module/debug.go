package module

import (
	"fmt"

	"github.com/kestrelops/kestrel/internal/domain"
)

// DebugModule prints a message or variable value; never changes anything,
// never leases a session (§4.3 LocalLogic).
type DebugModule struct{}

func (m *DebugModule) Name() string                              { return "debug" }
func (m *DebugModule) Classification() Classification             { return LocalLogic }
func (m *DebugModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *DebugModule) Validate(map[string]any) error { return nil }

func (m *DebugModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	if msg, ok := params["msg"]; ok {
		return domain.ModuleResult{Changed: false, Msg: fmt.Sprintf("%v", msg)}
	}
	if v, ok := params["var"]; ok {
		return domain.ModuleResult{Changed: false, Data: map[string]any{"var": v}}
	}
	return domain.ModuleResult{Changed: false}
}
