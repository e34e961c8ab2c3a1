package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/engine"
)

// treeCmd prints a playbook's play/task/handler structure. Nothing in the
// domain model resolves roles into task lists (Play.Roles is carried
// through the loader but never expanded), so this walks the structure
// actually present after loading rather than a role dependency graph.
func treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <playbook>",
		Short: "print a playbook's play/task/handler structure (dependency view)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pb, err := engine.LoadPlaybook(args[0])
			if err != nil {
				return err
			}
			for i, play := range pb.Plays {
				printPlay(i, play)
			}
			return nil
		},
	}
}

func printPlay(i int, play *domain.Play) {
	fmt.Printf("play[%d] %q (pattern=%s strategy=%s)\n", i, play.Name, play.Pattern, play.Strategy)
	if len(play.Roles) > 0 {
		fmt.Printf("  roles: %v\n", play.Roles)
	}
	printTaskList("  pre_tasks", play.PreTasks)
	printTaskList("  tasks", play.Tasks)
	printTaskList("  post_tasks", play.PostTasks)
	if len(play.Handlers) > 0 {
		fmt.Println("  handlers:")
		for _, h := range play.Handlers {
			if h.Task == nil {
				continue
			}
			fmt.Printf("    - %s (%s)\n", h.Task.Name, h.Task.Module)
		}
	}
}

func printTaskList(label string, tasks []*domain.Task) {
	if len(tasks) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, t := range tasks {
		printTask(t, 2)
	}
}

func printTask(t *domain.Task, depth int) {
	pad := indent(depth)
	if t.Block != nil {
		fmt.Printf("%s- block %q\n", pad, t.Name)
		printNested(pad, "block", t.Block.Block, depth)
		printNested(pad, "rescue", t.Block.Rescue, depth)
		printNested(pad, "always", t.Block.Always, depth)
		return
	}
	notify := ""
	if len(t.Notify) > 0 {
		notify = fmt.Sprintf(" notify=%v", t.Notify)
	}
	tags := ""
	if len(t.Tags) > 0 {
		tags = fmt.Sprintf(" tags=%v", t.Tags)
	}
	fmt.Printf("%s- %s (%s)%s%s\n", pad, t.Name, t.Module, notify, tags)
}

func printNested(pad, label string, tasks []*domain.Task, depth int) {
	if len(tasks) == 0 {
		return
	}
	fmt.Printf("%s  %s:\n", pad, label)
	for _, t := range tasks {
		printTask(t, depth+2)
	}
}
