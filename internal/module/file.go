package module

import (
	"fmt"

	"github.com/kestrelops/kestrel/internal/connection"
	"github.com/kestrelops/kestrel/internal/domain"
)

// FileModule manages remote file/directory state (existence, type) via
// shell primitives routed through the pool's escaping function, since
// pkg/sftp exposes no mkdir-with-mode/symlink/absent-removal primitives
// uniformly across targets.
type FileModule struct{}

func (m *FileModule) Name() string                              { return "file" }
func (m *FileModule) Classification() Classification             { return NativeTransport }
func (m *FileModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *FileModule) Validate(params map[string]any) error {
	if _, ok := params["path"].(string); !ok {
		return fmt.Errorf("file: requires 'path'")
	}
	state, _ := params["state"].(string)
	switch state {
	case "", "file", "directory", "absent", "touch", "link":
	default:
		return fmt.Errorf("file: unsupported state %q", state)
	}
	if state == "link" {
		if _, ok := params["src"].(string); !ok {
			return fmt.Errorf("file: state=link requires 'src'")
		}
	}
	return nil
}

func (m *FileModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	path := params["path"].(string)
	state, _ := params["state"].(string)
	if state == "" {
		state = "file"
	}

	isDir, _ := ctx.Pool.IsDirectory(ctx.Session, path)
	exists, _ := ctx.Pool.Exists(ctx.Session, path)

	switch state {
	case "directory":
		if exists && isDir {
			return domain.ModuleResult{Changed: false}
		}
		if ctx.CheckMode {
			return domain.ModuleResult{Changed: true, Msg: "would create directory " + path}
		}
		if err := m.run(ctx, "mkdir -p "+connection.ShellQuote(path)); err != nil {
			return domain.ModuleResult{Failed: true, Msg: err.Error()}
		}
		return domain.ModuleResult{Changed: true, Msg: "created directory " + path}

	case "absent":
		if !exists {
			return domain.ModuleResult{Changed: false}
		}
		if ctx.CheckMode {
			return domain.ModuleResult{Changed: true, Msg: "would remove " + path}
		}
		if err := m.run(ctx, "rm -rf "+connection.ShellQuote(path)); err != nil {
			return domain.ModuleResult{Failed: true, Msg: err.Error()}
		}
		return domain.ModuleResult{Changed: true, Msg: "removed " + path}

	case "touch":
		if exists {
			return domain.ModuleResult{Changed: false}
		}
		if ctx.CheckMode {
			return domain.ModuleResult{Changed: true, Msg: "would touch " + path}
		}
		if err := m.run(ctx, "touch "+connection.ShellQuote(path)); err != nil {
			return domain.ModuleResult{Failed: true, Msg: err.Error()}
		}
		return domain.ModuleResult{Changed: true}

	case "link":
		src := params["src"].(string)
		target, _ := ctx.Pool.Readlink(ctx.Session, path)
		if target == src {
			return domain.ModuleResult{Changed: false}
		}
		if ctx.CheckMode {
			return domain.ModuleResult{Changed: true, Msg: fmt.Sprintf("would link %s -> %s", path, src)}
		}
		cmd := fmt.Sprintf("ln -sfn %s %s", connection.ShellQuote(src), connection.ShellQuote(path))
		if err := m.run(ctx, cmd); err != nil {
			return domain.ModuleResult{Failed: true, Msg: err.Error()}
		}
		return domain.ModuleResult{Changed: true, Msg: fmt.Sprintf("linked %s -> %s", path, src)}

	default: // "file": only asserts the path exists and is a regular file
		if !exists {
			return domain.ModuleResult{Failed: true, Msg: path + " does not exist"}
		}
		if isDir {
			return domain.ModuleResult{Failed: true, Msg: path + " is a directory, expected file"}
		}
		return domain.ModuleResult{Changed: false}
	}
}

func (m *FileModule) run(ctx ExecContext, cmd string) error {
	opts := connection.ExecOptions{}
	if ctx.Become != nil && ctx.Become.Enabled {
		esc := &connection.EscalationSpec{Method: ctx.Become.Method, User: ctx.Become.User}
		if ctx.BecomeSecret != nil {
			esc.PasswordSink = ctx.BecomeSecret.Reveal()
		}
		opts.Escalation = esc
	}
	built, err := connection.BuildCommand(cmd, opts)
	if err != nil {
		return err
	}
	_, err = ctx.Pool.Execute(ctx.Session, built, opts)
	return err
}
