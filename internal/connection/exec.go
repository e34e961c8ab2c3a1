package connection

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

// escalationAllowlist is the closed set of privilege-escalation methods the
// pool will ever shell out to (§4.1 command-construction contract, rule 1).
var escalationAllowlist = map[string]bool{
	"sudo": true, "su": true, "doas": true, "pbrun": true,
	"pfexec": true, "runas": true, "dzdo": true, "ksu": true,
}

// escalationUserPattern is rule 2 of the command-construction contract.
var escalationUserPattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// EscalationSpec describes a privilege-escalation request for one command.
type EscalationSpec struct {
	Method       string
	User         string
	PasswordSink []byte // sent on stdin only; never placed in argv
}

// ExecOptions bundles everything execute() needs beyond the command text.
type ExecOptions struct {
	WorkingDir  string
	Env         map[string]string
	Escalation  *EscalationSpec
	Stdin       []byte
	TimeoutSecs int
}

// shellQuote implements rule 3: single-quote escaping, `'` -> `'\''`.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellQuote exports the same single-quote escaping for modules that need
// to interpolate a path or value into a command string they hand to
// BuildCommand (e.g. `file`'s mkdir/rm/touch primitives), keeping every
// interpolation site routed through one escaping function (§4.1 rule 3).
func ShellQuote(s string) string { return shellQuote(s) }

// BuildCommand assembles the final shell command string for cmd under opts,
// enforcing the full command-construction contract. It is the only
// function in the engine permitted to concatenate a raw command string.
func BuildCommand(cmd string, opts ExecOptions) (string, error) {
	var b strings.Builder

	if opts.WorkingDir != "" {
		fmt.Fprintf(&b, "cd %s && ", shellQuote(opts.WorkingDir))
	}
	envKeys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		fmt.Fprintf(&b, "%s=%s ", k, shellQuote(opts.Env[k]))
	}

	if opts.Escalation != nil && opts.Escalation.Method != "" {
		esc := opts.Escalation
		if !escalationAllowlist[esc.Method] {
			return "", kestrelerr.Newf(kestrelerr.ClassConfig, "escalation method %q is not in the allowlist", esc.Method)
		}
		if esc.User != "" && !escalationUserPattern.MatchString(esc.User) {
			return "", kestrelerr.Newf(kestrelerr.ClassConfig, "escalation user %q is not a valid username", esc.User)
		}
		prefix, wrapCmd := buildEscalationPrefix(esc)
		b.WriteString(prefix)
		if wrapCmd {
			b.WriteString(shellQuote(cmd))
			return b.String(), nil
		}
	}

	b.WriteString(cmd)
	return b.String(), nil
}

// buildEscalationPrefix renders "sudo -S -u 'user' -- " style prefixes. For
// sudo, -S tells it to read its password from stdin rather than a tty; the
// other methods get no stdin flag. No prefix ever carries the password.
// wrapCmd reports whether the method expects the remaining command as a
// single quoted argument (su/ksu's "-c") rather than a bare suffix.
func buildEscalationPrefix(esc *EscalationSpec) (prefix string, wrapCmd bool) {
	var b strings.Builder
	switch esc.Method {
	case "sudo":
		b.WriteString("sudo -S ")
		if esc.User != "" {
			fmt.Fprintf(&b, "-u %s ", shellQuote(esc.User))
		}
		b.WriteString("-- ")
	case "su":
		if esc.User != "" {
			fmt.Fprintf(&b, "su %s -c ", shellQuote(esc.User))
		} else {
			b.WriteString("su -c ")
		}
		wrapCmd = true
	case "doas":
		b.WriteString("doas ")
		if esc.User != "" {
			fmt.Fprintf(&b, "-u %s ", shellQuote(esc.User))
		}
	case "pbrun":
		b.WriteString("pbrun ")
		if esc.User != "" {
			fmt.Fprintf(&b, "-u %s ", shellQuote(esc.User))
		}
	case "pfexec":
		b.WriteString("pfexec ")
	case "runas":
		b.WriteString("runas ")
		if esc.User != "" {
			fmt.Fprintf(&b, "/user:%s ", shellQuote(esc.User))
		}
	case "dzdo":
		b.WriteString("dzdo ")
		if esc.User != "" {
			fmt.Fprintf(&b, "-u %s ", shellQuote(esc.User))
		}
	case "ksu":
		if esc.User != "" {
			fmt.Fprintf(&b, "ksu %s -e ", shellQuote(esc.User))
		} else {
			b.WriteString("ksu -e ")
		}
		wrapCmd = true
	}
	return b.String(), wrapCmd
}
