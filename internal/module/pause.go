package module

import (
	"time"

	"github.com/kestrelops/kestrel/internal/domain"
)

// PauseModule blocks the host's runner for a fixed duration; a no-op in
// check mode since nothing is being mutated (§4.3 LocalLogic).
type PauseModule struct{}

func (m *PauseModule) Name() string                              { return "pause" }
func (m *PauseModule) Classification() Classification             { return LocalLogic }
func (m *PauseModule) ParallelizationHint() ParallelizationHint { return FullyParallel }
func (m *PauseModule) Validate(map[string]any) error              { return nil }

func (m *PauseModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	secs, _ := params["seconds"].(float64)
	if secs <= 0 {
		if i, ok := params["seconds"].(int); ok {
			secs = float64(i)
		}
	}
	if ctx.CheckMode || secs <= 0 {
		return domain.ModuleResult{Changed: false}
	}
	select {
	case <-time.After(time.Duration(secs * float64(time.Second))):
	case <-ctx.Context.Done():
	}
	return domain.ModuleResult{Changed: false}
}
