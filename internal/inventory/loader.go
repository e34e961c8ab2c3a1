// Package inventory loads and resolves inventory sources into a
// domain.Inventory (§6 inventory file formats) and implements the host
// pattern matcher (C8).
package inventory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"gopkg.in/yaml.v3"
)

// yamlDoc mirrors the nested YAML inventory shape:
//
//	all:
//	  hosts: {name: {vars...}}
//	  vars: {...}
//	  children:
//	    groupname:
//	      hosts: {...}
//	      vars: {...}
//	      children: {...}
type yamlGroup struct {
	Hosts    map[string]map[string]any `yaml:"hosts"`
	Vars     map[string]any            `yaml:"vars"`
	Children map[string]*yamlGroup     `yaml:"children"`
}

type yamlDoc struct {
	All *yamlGroup `yaml:"all"`
}

// LoadFile detects the inventory file format from its extension alone and
// loads it into inv. Supported: YAML (.yml/.yaml), JSON (.json), and
// classic INI-style inventory (anything else, including extensionless
// files). Files are never executed.
func LoadFile(inv *domain.Inventory, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kestrelerr.New(kestrelerr.ClassInventory, err)
	}
	switch {
	case strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".yaml"):
		return loadYAML(inv, data)
	case strings.HasSuffix(path, ".json"):
		return loadJSON(inv, data)
	default:
		return loadINI(inv, data)
	}
}

func loadYAML(inv *domain.Inventory, data []byte) error {
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return kestrelerr.New(kestrelerr.ClassParse, fmt.Errorf("inventory yaml: %w", err))
	}
	if doc.All == nil {
		return kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("inventory yaml: missing root 'all' group"))
	}
	return assembleYAMLGroup(inv, domain.AllGroup, doc.All)
}

func assembleYAMLGroup(inv *domain.Inventory, name string, yg *yamlGroup) error {
	g := inv.AddGroup(name)
	for k, v := range yg.Vars {
		g.Vars[k] = v
	}
	for hostName, hvars := range yg.Hosts {
		h := &domain.Host{Name: hostName, Vars: hvars, Groups: []string{name}}
		applyConnectionVars(h)
		inv.AddHost(h)
	}
	for childName, child := range yg.Children {
		if err := inv.LinkChild(name, childName); err != nil {
			return kestrelerr.New(kestrelerr.ClassInventory, err)
		}
		if err := assembleYAMLGroup(inv, childName, child); err != nil {
			return err
		}
	}
	return nil
}

// applyConnectionVars lifts the ansible_host/ansible_port/ansible_user-style
// reserved vars into the host's ConnectionProfile, leaving the rest in Vars.
func applyConnectionVars(h *domain.Host) {
	h.Connection.Address = h.Name
	h.Connection.Port = 22
	if v, ok := h.Vars["ansible_host"].(string); ok {
		h.Connection.Address = v
		delete(h.Vars, "ansible_host")
	}
	if v, ok := h.Vars["ansible_port"]; ok {
		switch t := v.(type) {
		case int:
			h.Connection.Port = t
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				h.Connection.Port = n
			}
		}
		delete(h.Vars, "ansible_port")
	}
	if v, ok := h.Vars["ansible_user"].(string); ok {
		h.Connection.User = v
		delete(h.Vars, "ansible_user")
	}
	if v, ok := h.Vars["ansible_ssh_private_key_file"].(string); ok {
		h.Connection.Auth.Kind = "file"
		h.Connection.Auth.KeyPath = v
		delete(h.Vars, "ansible_ssh_private_key_file")
	}
}

type jsonDoc struct {
	All *jsonGroup `json:"all"`
}

type jsonGroup struct {
	Hosts    map[string]map[string]any `json:"hosts"`
	Vars     map[string]any            `json:"vars"`
	Children map[string]*jsonGroup     `json:"children"`
}

func loadJSON(inv *domain.Inventory, data []byte) error {
	var doc jsonDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return kestrelerr.New(kestrelerr.ClassParse, fmt.Errorf("inventory json: %w", err))
	}
	if doc.All == nil {
		return kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("inventory json: missing root 'all' group"))
	}
	return assembleJSONGroup(inv, domain.AllGroup, doc.All)
}

func assembleJSONGroup(inv *domain.Inventory, name string, jg *jsonGroup) error {
	g := inv.AddGroup(name)
	for k, v := range jg.Vars {
		g.Vars[k] = v
	}
	for hostName, hvars := range jg.Hosts {
		h := &domain.Host{Name: hostName, Vars: hvars, Groups: []string{name}}
		applyConnectionVars(h)
		inv.AddHost(h)
	}
	for childName, child := range jg.Children {
		if err := inv.LinkChild(name, childName); err != nil {
			return kestrelerr.New(kestrelerr.ClassInventory, err)
		}
		if err := assembleJSONGroup(inv, childName, child); err != nil {
			return err
		}
	}
	return nil
}

// loadINI parses the classic line-oriented inventory format:
//
//	[groupname]
//	host1 ansible_host=10.0.0.1 ansible_port=2222
//	host2
//
//	[groupname:children]
//	othergroup
//
//	[groupname:vars]
//	key=value
func loadINI(inv *domain.Inventory, data []byte) error {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	currentGroup := domain.AllGroup
	currentKind := "hosts"
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			header := line[1 : len(line)-1]
			if name, kind, ok := strings.Cut(header, ":"); ok {
				currentGroup, currentKind = name, kind
			} else {
				currentGroup, currentKind = header, "hosts"
			}
			inv.AddGroup(currentGroup)
			continue
		}
		switch currentKind {
		case "children":
			if err := inv.LinkChild(currentGroup, line); err != nil {
				return kestrelerr.New(kestrelerr.ClassInventory, err)
			}
		case "vars":
			k, v, _ := strings.Cut(line, "=")
			inv.AddGroup(currentGroup).Vars[strings.TrimSpace(k)] = parseScalar(strings.TrimSpace(v))
		default: // hosts
			fields := strings.Fields(line)
			h := &domain.Host{Name: fields[0], Vars: map[string]any{}, Groups: []string{currentGroup}}
			for _, kv := range fields[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if ok {
					h.Vars[k] = parseScalar(v)
				}
			}
			applyConnectionVars(h)
			inv.AddHost(h)
		}
	}
	if err := scanner.Err(); err != nil {
		return kestrelerr.New(kestrelerr.ClassParse, err)
	}
	return nil
}

func parseScalar(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return strings.Trim(s, `"'`)
}
