package module

import "github.com/kestrelops/kestrel/internal/domain"

// SetFactModule binds every key:value pair in its params into the host
// scope at the set-fact/registered layer (§4.2, §4.3 LocalLogic). The
// runner, not this module, performs the actual Scope write — Execute just
// echoes the values back as Data so the runner's register path can pick
// them up uniformly with every other module's result.
type SetFactModule struct{}

func (m *SetFactModule) Name() string                              { return "set_fact" }
func (m *SetFactModule) Classification() Classification             { return LocalLogic }
func (m *SetFactModule) ParallelizationHint() ParallelizationHint { return FullyParallel }
func (m *SetFactModule) Validate(map[string]any) error              { return nil }

func (m *SetFactModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	facts := make(map[string]any, len(params))
	for k, v := range params {
		if k == "cacheable" || k == "__scope" {
			continue
		}
		facts[k] = v
	}
	return domain.ModuleResult{Changed: true, Data: facts}
}
