package connection

import (
	"strings"
	"testing"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote(`it's a test`)
	want := `'it'\''s a test'`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildCommandRejectsUnknownEscalationMethod(t *testing.T) {
	_, err := BuildCommand("whoami", ExecOptions{Escalation: &EscalationSpec{Method: "evilmethod"}})
	if err == nil {
		t.Fatal("expected error for disallowed escalation method")
	}
	if kestrelerr.ClassOf(err) != kestrelerr.ClassConfig {
		t.Fatalf("expected ClassConfig, got %v", kestrelerr.ClassOf(err))
	}
}

func TestBuildCommandRejectsInvalidUsername(t *testing.T) {
	_, err := BuildCommand("whoami", ExecOptions{Escalation: &EscalationSpec{Method: "sudo", User: "Not Valid!"}})
	if err == nil {
		t.Fatal("expected error for invalid escalation username")
	}
}

func TestBuildCommandSudoPrefix(t *testing.T) {
	cmd, err := BuildCommand("apt-get update", ExecOptions{Escalation: &EscalationSpec{Method: "sudo", User: "deploy"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(cmd, "sudo -S -u 'deploy' -- ") {
		t.Fatalf("unexpected command: %q", cmd)
	}
	if !strings.HasSuffix(cmd, "apt-get update") {
		t.Fatalf("unexpected command: %q", cmd)
	}
}

func TestBuildCommandSuWrapsCommand(t *testing.T) {
	cmd, err := BuildCommand("id", ExecOptions{Escalation: &EscalationSpec{Method: "su", User: "deploy"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cmd, "-c 'id'") {
		t.Fatalf("expected quoted command argument, got %q", cmd)
	}
}

func TestBuildCommandQuotesWorkingDirAndEnv(t *testing.T) {
	cmd, err := BuildCommand("run.sh", ExecOptions{
		WorkingDir: "/opt/it's",
		Env:        map[string]string{"FOO": "bar baz"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cmd, `cd '/opt/it'\''s' &&`) {
		t.Fatalf("expected quoted working dir, got %q", cmd)
	}
	if !strings.Contains(cmd, `FOO='bar baz'`) {
		t.Fatalf("expected quoted env value, got %q", cmd)
	}
}

func TestBuildCommandNoEscalation(t *testing.T) {
	cmd, err := BuildCommand("echo hi", ExecOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "echo hi" {
		t.Fatalf("got %q", cmd)
	}
}
