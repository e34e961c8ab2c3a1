package module

import (
	"fmt"

	"github.com/kestrelops/kestrel/internal/connection"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

// CommandModule implements both `command` (shell=false) and `shell`
// (shell=true): RemoteCommand modules are not idempotent on their own —
// the engine relies on `changed_when`/`failed_when` to make them so.
type CommandModule struct {
	shell      bool
	moduleName string
}

func (m *CommandModule) Name() string {
	if m.moduleName != "" {
		return m.moduleName
	}
	return "command"
}

func (m *CommandModule) Classification() Classification         { return RemoteCommand }
func (m *CommandModule) ParallelizationHint() ParallelizationHint { return FullyParallel }

func (m *CommandModule) Validate(params map[string]any) error {
	if _, ok := params["cmd"].(string); !ok {
		if _, ok := params["_raw_params"].(string); !ok {
			return fmt.Errorf("%s: requires a 'cmd' parameter", m.Name())
		}
	}
	return nil
}

func (m *CommandModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	cmd, _ := params["cmd"].(string)
	if cmd == "" {
		cmd, _ = params["_raw_params"].(string)
	}
	if ctx.CheckMode {
		return domain.ModuleResult{Changed: true, Msg: "command would run (check mode)"}
	}

	opts := connection.ExecOptions{}
	if wd, ok := params["chdir"].(string); ok {
		opts.WorkingDir = wd
	}
	if env, ok := params["environment"].(map[string]any); ok {
		opts.Env = make(map[string]string, len(env))
		for k, v := range env {
			opts.Env[k] = fmt.Sprintf("%v", v)
		}
	}
	if ctx.Become != nil && ctx.Become.Enabled {
		esc := &connection.EscalationSpec{Method: ctx.Become.Method, User: ctx.Become.User}
		if ctx.BecomeSecret != nil {
			esc.PasswordSink = ctx.BecomeSecret.Reveal()
		}
		opts.Escalation = esc
	}

	built, err := connection.BuildCommand(cmd, opts)
	if err != nil {
		return domain.ModuleResult{Failed: true, Msg: err.Error()}
	}

	res, err := ctx.Pool.Execute(ctx.Session, built, opts)
	if err != nil {
		return domain.ModuleResult{
			Failed:      true,
			Unreachable: kestrelerr.ClassOf(err) == kestrelerr.ClassConnection,
			Msg:         err.Error(),
		}
	}
	return domain.ModuleResult{
		Changed: true,
		Failed:  res.RC != 0,
		RC:      res.RC,
		Stdout:  string(res.Stdout),
		Stderr:  string(res.Stderr),
	}
}
