package runner

import (
	"context"

	"github.com/kestrelops/kestrel/internal/domain"
)

// RunTaskList runs an ordered task list for one host, stopping as soon as
// the host is deactivated by a failure (§5: strict per-host ordering). It
// is the entry point the scheduler (C5) uses for a play's pre_tasks, tasks,
// and post_tasks phases, and for a role's task list.
func (r *Runner) RunTaskList(ctx context.Context, play *domain.Play, hs *HostState, tasks []*domain.Task) error {
	return r.runChildren(ctx, play, hs, tasks)
}
