package module

import (
	"fmt"
	"os"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/pkg/crypto"
	"github.com/kestrelops/kestrel/internal/pkg/fsutil"
)

// CopyModule uploads local content to a remote path, idempotent on
// content hash (§4.3 NativeTransport).
type CopyModule struct{}

func (m *CopyModule) Name() string                              { return "copy" }
func (m *CopyModule) Classification() Classification             { return NativeTransport }
func (m *CopyModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *CopyModule) Validate(params map[string]any) error {
	if _, ok := params["dest"].(string); !ok {
		return fmt.Errorf("copy: requires 'dest'")
	}
	if _, hasSrc := params["src"]; !hasSrc {
		if _, hasContent := params["content"]; !hasContent {
			return fmt.Errorf("copy: requires 'src' or 'content'")
		}
	}
	return nil
}

func (m *CopyModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	dest := params["dest"].(string)
	var data []byte
	if content, ok := params["content"].(string); ok {
		data = []byte(content)
	} else if src, ok := params["src"].(string); ok {
		if want, ok := params["checksum"].(string); ok && want != "" {
			got, err := fsutil.HashFile(src)
			if err != nil {
				return domain.ModuleResult{Failed: true, Msg: err.Error()}
			}
			if got != want {
				return domain.ModuleResult{Failed: true, Msg: fmt.Sprintf("copy: %s checksum mismatch: want %s, got %s", src, want, got)}
			}
		}
		raw, err := os.ReadFile(src)
		if err != nil {
			return domain.ModuleResult{Failed: true, Msg: err.Error()}
		}
		data = raw
	}

	desiredHash := crypto.HashString(string(data))
	currentHash := ""
	existing, err := ctx.Pool.Download(ctx.Session, dest)
	if err == nil {
		currentHash = crypto.HashString(string(existing))
	}

	if currentHash == desiredHash {
		return domain.ModuleResult{Changed: false, Msg: "content already up to date"}
	}

	result := domain.ModuleResult{Changed: true}
	if ctx.DiffMode {
		result.Diff = &domain.Diff{Before: string(existing), After: string(data)}
	}
	if ctx.CheckMode {
		result.Msg = "would update " + dest
		return result
	}

	var mode os.FileMode
	if modeStr, ok := params["mode"].(string); ok {
		if parsed, perr := parseFileMode(modeStr); perr == nil {
			mode = parsed
		}
	}
	if err := ctx.Pool.Upload(ctx.Session, data, dest, mode); err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}
	result.Msg = "updated " + dest
	return result
}

func parseFileMode(s string) (os.FileMode, error) {
	var m uint32
	_, err := fmt.Sscanf(s, "%o", &m)
	return os.FileMode(m), err
}
