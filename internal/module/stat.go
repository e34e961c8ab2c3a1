package module

import (
	"fmt"

	"github.com/kestrelops/kestrel/internal/domain"
)

// StatModule reports whether a remote path exists and its basic metadata.
// It never mutates state, so it behaves identically in and out of check
// mode (§4.3 NativeTransport).
type StatModule struct{}

func (m *StatModule) Name() string                              { return "stat" }
func (m *StatModule) Classification() Classification             { return NativeTransport }
func (m *StatModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *StatModule) Validate(params map[string]any) error {
	if _, ok := params["path"].(string); !ok {
		return fmt.Errorf("stat: requires 'path'")
	}
	return nil
}

func (m *StatModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	path := params["path"].(string)
	exists, err := ctx.Pool.Exists(ctx.Session, path)
	if err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}
	data := map[string]any{"exists": exists}
	if exists {
		info, err := ctx.Pool.Stat(ctx.Session, path)
		if err == nil {
			data["isdir"] = info.IsDir()
			data["size"] = info.Size()
			data["mode"] = info.Mode().String()
		}
	}
	return domain.ModuleResult{Changed: false, Data: data}
}
