package module

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kestrelops/kestrel/internal/domain"
)

// LineInFileModule ensures a particular line is present or absent in a
// remote file, matched by regexp (§4.3 NativeTransport).
type LineInFileModule struct{}

func (m *LineInFileModule) Name() string                              { return "lineinfile" }
func (m *LineInFileModule) Classification() Classification             { return NativeTransport }
func (m *LineInFileModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *LineInFileModule) Validate(params map[string]any) error {
	if _, ok := params["path"].(string); !ok {
		return fmt.Errorf("lineinfile: requires 'path'")
	}
	if _, ok := params["line"].(string); !ok {
		return fmt.Errorf("lineinfile: requires 'line'")
	}
	return nil
}

func (m *LineInFileModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	path := params["path"].(string)
	line := params["line"].(string)
	state, _ := params["state"].(string)
	if state == "" {
		state = "present"
	}
	regexpStr, _ := params["regexp"].(string)

	existing, err := ctx.Pool.Download(ctx.Session, path)
	if err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}
	lines := strings.Split(string(existing), "\n")

	var matcher *regexp.Regexp
	if regexpStr != "" {
		matcher, err = regexp.Compile(regexpStr)
		if err != nil {
			return domain.ModuleResult{Failed: true, Msg: err.Error()}
		}
	}

	matchIdx := -1
	for i, l := range lines {
		if matcher != nil {
			if matcher.MatchString(l) {
				matchIdx = i
				break
			}
		} else if l == line {
			matchIdx = i
			break
		}
	}

	var newLines []string
	changed := false
	switch state {
	case "absent":
		if matchIdx == -1 {
			return domain.ModuleResult{Changed: false}
		}
		newLines = append(append([]string{}, lines[:matchIdx]...), lines[matchIdx+1:]...)
		changed = true
	default: // present
		if matchIdx != -1 {
			if lines[matchIdx] == line {
				return domain.ModuleResult{Changed: false}
			}
			newLines = append([]string{}, lines...)
			newLines[matchIdx] = line
			changed = true
		} else {
			newLines = append(append([]string{}, lines...), line)
			changed = true
		}
	}

	if !changed {
		return domain.ModuleResult{Changed: false}
	}
	newContent := strings.Join(newLines, "\n")
	result := domain.ModuleResult{Changed: true}
	if ctx.DiffMode {
		result.Diff = &domain.Diff{Before: string(existing), After: newContent}
	}
	if ctx.CheckMode {
		result.Msg = "would update " + path
		return result
	}
	if err := ctx.Pool.Upload(ctx.Session, []byte(newContent), path, 0); err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}
	return result
}
