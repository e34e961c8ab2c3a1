// Package domain defines the core data model shared by every engine
// component: inventory, playbook, task, variable scope, and module result.
package domain

import "fmt"

// AllGroup is the distinguished root group containing every host.
const AllGroup = "all"

// AuthProfile describes how to obtain SSH authentication material for a
// host. Kind selects the resolver implementation in internal/credentials.
type AuthProfile struct {
	Kind         string `yaml:"kind,omitempty" json:"kind,omitempty"` // file | agent | aws_secretsmanager
	KeyPath      string `yaml:"key_path,omitempty" json:"key_path,omitempty"`
	Passphrase   string `yaml:"passphrase,omitempty" json:"passphrase,omitempty"`
	SecretID     string `yaml:"secret_id,omitempty" json:"secret_id,omitempty"` // AWS Secrets Manager ARN/name
	AWSRegion    string `yaml:"aws_region,omitempty" json:"aws_region,omitempty"`
}

// ConnectionProfile carries everything C1 needs to reach a host.
type ConnectionProfile struct {
	Address string      `yaml:"address" json:"address"`
	Port    int         `yaml:"port,omitempty" json:"port,omitempty"`
	User    string      `yaml:"user" json:"user"`
	Auth    AuthProfile `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// Host is one inventory entry.
type Host struct {
	Name       string
	Connection ConnectionProfile
	Vars       map[string]any

	// Groups this host is a direct member of, in the order they were
	// declared. Transitive membership is derived via the group graph.
	Groups []string
}

// Group is a named collection of hosts and child groups.
type Group struct {
	Name     string
	Hosts    []string // direct host members, insertion order
	Children []string // direct child group names, insertion order
	Parents  []string // direct parent group names
	Vars     map[string]any
}

// Inventory is the full set of hosts and groups for a run.
type Inventory struct {
	Hosts  map[string]*Host
	Groups map[string]*Group
}

// NewInventory returns an empty inventory seeded with the "all" root group.
func NewInventory() *Inventory {
	return &Inventory{
		Hosts: make(map[string]*Host),
		Groups: map[string]*Group{
			AllGroup: {Name: AllGroup, Vars: map[string]any{}},
		},
	}
}

// AddHost registers a host, creating it if absent, and merges group
// membership into "all" implicitly.
func (inv *Inventory) AddHost(h *Host) {
	if h.Vars == nil {
		h.Vars = map[string]any{}
	}
	if existing, ok := inv.Hosts[h.Name]; ok {
		for k, v := range h.Vars {
			existing.Vars[k] = v
		}
		existing.Groups = mergeUnique(existing.Groups, h.Groups)
		h = existing
	} else {
		inv.Hosts[h.Name] = h
	}
	all := inv.Groups[AllGroup]
	if !contains(all.Hosts, h.Name) {
		all.Hosts = append(all.Hosts, h.Name)
	}
}

// AddGroup registers a group, creating it if absent, and wires parent/child
// pointers symmetrically.
func (inv *Inventory) AddGroup(name string) *Group {
	g, ok := inv.Groups[name]
	if !ok {
		g = &Group{Name: name, Vars: map[string]any{}}
		inv.Groups[name] = g
	}
	return g
}

// LinkChild adds child as a child group of parent, maintaining both
// directions of the edge. Returns an error if the edge would create a
// cycle in the group graph (§3 invariant: the group graph is acyclic).
func (inv *Inventory) LinkChild(parent, child string) error {
	p := inv.AddGroup(parent)
	c := inv.AddGroup(child)
	if inv.reachable(child, parent) {
		return fmt.Errorf("inventory: group cycle detected linking %q -> %q", parent, child)
	}
	if !contains(p.Children, child) {
		p.Children = append(p.Children, child)
	}
	if !contains(c.Parents, parent) {
		c.Parents = append(c.Parents, parent)
	}
	return nil
}

// reachable reports whether to is reachable from `from` by following child
// edges (used for cycle detection before adding a new edge).
func (inv *Inventory) reachable(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{}
	var walk func(string) bool
	walk = func(n string) bool {
		if seen[n] {
			return false
		}
		seen[n] = true
		g, ok := inv.Groups[n]
		if !ok {
			return false
		}
		for _, c := range g.Children {
			if c == to || walk(c) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// GroupsOfHost returns every group (direct and transitive ancestor) a host
// belongs to, topologically ordered parents-before-children, deterministic
// for siblings by name.
func (inv *Inventory) GroupsOfHost(hostName string) []string {
	h, ok := inv.Hosts[hostName]
	if !ok {
		return nil
	}
	start := append([]string{}, h.Groups...)
	start = append(start, AllGroup)

	visited := map[string]bool{}
	var order []string
	var visit func(string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		g, ok := inv.Groups[name]
		if !ok {
			return
		}
		visited[name] = true
		for _, parent := range sortedUnique(g.Parents) {
			visit(parent)
		}
		order = append(order, name)
	}
	for _, g := range sortedUnique(start) {
		visit(g)
	}
	return order
}

// HostsOfGroup returns every host transitively in group name (direct
// members first, then each child group's members in declared order),
// deduplicated on first occurrence. Unknown group names yield nil.
func (inv *Inventory) HostsOfGroup(name string) []string {
	g, ok := inv.Groups[name]
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	add := func(h string) {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	var walk func(*Group)
	walkedGroups := map[string]bool{}
	walk = func(cur *Group) {
		if walkedGroups[cur.Name] {
			return
		}
		walkedGroups[cur.Name] = true
		for _, h := range cur.Hosts {
			add(h)
		}
		for _, childName := range cur.Children {
			if child, ok := inv.Groups[childName]; ok {
				walk(child)
			}
		}
	}
	walk(g)
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func mergeUnique(a, b []string) []string {
	out := append([]string{}, a...)
	for _, v := range b {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
