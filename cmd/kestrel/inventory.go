package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/inventory"
)

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "inspect the inventory file",
	}
	cmd.AddCommand(inventoryListCmd(), inventoryGraphCmd())
	return cmd
}

func loadInventory() (*domain.Inventory, error) {
	inv := domain.NewInventory()
	if err := inventory.LoadFile(inv, inventoryPath); err != nil {
		return nil, err
	}
	return inv, nil
}

func inventoryListCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list hosts matching a pattern (default: all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInventory()
			if err != nil {
				return err
			}
			if pattern == "" {
				pattern = "all"
			}
			hosts, err := inventory.Resolve(inv, pattern)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HOST\tADDRESS\tUSER\tGROUPS")
			for _, name := range hosts {
				h := inv.Hosts[name]
				groups := inv.GroupsOfHost(name)
				sort.Strings(groups)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Name, h.Connection.Address, h.Connection.User, joinComma(groups))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "all", "host pattern to list")
	return cmd
}

func inventoryGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "print the group/host membership tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := loadInventory()
			if err != nil {
				return err
			}
			printGroup(inv, domain.AllGroup, 0, map[string]bool{})
			return nil
		},
	}
}

// printGroup walks the group graph depth-first, guarding against a cycle
// with visited (LinkChild already rejects cycles on insert, but a
// defensively-loaded file from disk could still round-trip one).
func printGroup(inv *domain.Inventory, name string, depth int, visited map[string]bool) {
	if visited[name] {
		return
	}
	visited[name] = true
	g, ok := inv.Groups[name]
	if !ok {
		return
	}
	fmt.Printf("%s%s\n", indent(depth), name)

	hosts := append([]string(nil), g.Hosts...)
	sort.Strings(hosts)
	for _, h := range hosts {
		fmt.Printf("%s- %s\n", indent(depth+1), h)
	}

	children := append([]string(nil), g.Children...)
	sort.Strings(children)
	for _, child := range children {
		printGroup(inv, child, depth+1, visited)
	}
}

func indent(depth int) string {
	out := ""
	for i := 0; i < depth; i++ {
		out += "  "
	}
	return out
}

func joinComma(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += ","
		}
		out += x
	}
	return out
}
