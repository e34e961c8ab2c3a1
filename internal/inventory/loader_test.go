package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrelops/kestrel/internal/domain"
)

func TestLoadINI(t *testing.T) {
	content := `[web]
web01 ansible_host=10.0.0.1 ansible_port=2222
web02

[web:vars]
http_port=8080

[db]
db01

[app:children]
web
db
`
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	inv := domain.NewInventory()
	if err := LoadFile(inv, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	web01, ok := inv.Hosts["web01"]
	if !ok {
		t.Fatal("expected web01 to be loaded")
	}
	if web01.Connection.Address != "10.0.0.1" || web01.Connection.Port != 2222 {
		t.Fatalf("unexpected connection profile: %+v", web01.Connection)
	}
	if inv.Groups["web"].Vars["http_port"] != 8080 {
		t.Fatalf("expected group var http_port=8080, got %v", inv.Groups["web"].Vars["http_port"])
	}

	appHosts := inv.HostsOfGroup("app")
	if len(appHosts) != 3 {
		t.Fatalf("expected app to transitively contain 3 hosts, got %v", appHosts)
	}
}

func TestLoadYAML(t *testing.T) {
	content := `all:
  children:
    web:
      hosts:
        web01:
          ansible_host: 10.0.0.1
        web02: {}
      vars:
        http_port: 8080
`
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	inv := domain.NewInventory()
	if err := LoadFile(inv, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(inv.Hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(inv.Hosts))
	}
	if inv.Hosts["web01"].Connection.Address != "10.0.0.1" {
		t.Fatalf("unexpected address: %v", inv.Hosts["web01"].Connection.Address)
	}
}

func TestLoadJSON(t *testing.T) {
	content := `{"all":{"children":{"db":{"hosts":{"db01":{}}}}}}`
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	inv := domain.NewInventory()
	if err := LoadFile(inv, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, ok := inv.Hosts["db01"]; !ok {
		t.Fatal("expected db01 to be loaded")
	}
}
