package runner

import (
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/secret"
	"github.com/kestrelops/kestrel/internal/vars"
)

// effectiveBecome resolves the task's privilege-escalation request: an
// explicit per-task Become overrides the play default (§3 Task.Become:
// "nil means inherit play default").
func effectiveBecome(play *domain.Play, task *domain.Task) *domain.Become {
	if task.Become != nil {
		return task.Become
	}
	return &play.BecomeDefault
}

// resolveBecomeSecret looks up Become.PasswordRef in scope and wraps it in
// a scrub-on-release buffer (§4.1: "stdin-only escalation passwords").
// Returns nil when escalation is disabled or carries no password reference.
func resolveBecomeSecret(become *domain.Become, s *vars.Scope) *secret.Bytes {
	if become == nil || !become.Enabled || become.PasswordRef == "" {
		return nil
	}
	val, ok := s.Get(become.PasswordRef)
	if !ok {
		return nil
	}
	str, ok := val.(string)
	if !ok {
		return nil
	}
	return secret.NewString(str)
}
