package module

import (
	"fmt"
	"os"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/pkg/crypto"
	"github.com/kestrelops/kestrel/internal/vars"
)

// TemplateModule renders a local Jinja-style template file against the
// host's flattened scope and uploads the result, idempotent on content
// hash like copy (§4.3 NativeTransport).
type TemplateModule struct{}

func (m *TemplateModule) Name() string                              { return "template" }
func (m *TemplateModule) Classification() Classification             { return NativeTransport }
func (m *TemplateModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *TemplateModule) Validate(params map[string]any) error {
	if _, ok := params["src"].(string); !ok {
		return fmt.Errorf("template: requires 'src'")
	}
	if _, ok := params["dest"].(string); !ok {
		return fmt.Errorf("template: requires 'dest'")
	}
	return nil
}

func (m *TemplateModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	src := params["src"].(string)
	dest := params["dest"].(string)
	scope, _ := params["__scope"].(map[string]any)

	raw, err := os.ReadFile(src)
	if err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}
	rendered, err := vars.RenderString(string(raw), scope)
	if err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}
	data := []byte(fmt.Sprintf("%v", rendered))

	existing, _ := ctx.Pool.Download(ctx.Session, dest)
	if crypto.HashString(string(existing)) == crypto.HashString(string(data)) {
		return domain.ModuleResult{Changed: false}
	}

	result := domain.ModuleResult{Changed: true}
	if ctx.DiffMode {
		result.Diff = &domain.Diff{Before: string(existing), After: string(data)}
	}
	if ctx.CheckMode {
		result.Msg = "would render " + src + " to " + dest
		return result
	}
	if err := ctx.Pool.Upload(ctx.Session, data, dest, 0); err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}
	result.Msg = "rendered " + src + " to " + dest
	return result
}
