package module

import "testing"

func TestFileValidateRequiresPath(t *testing.T) {
	m := &FileModule{}
	if err := m.Validate(map[string]any{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFileValidateRejectsUnknownState(t *testing.T) {
	m := &FileModule{}
	err := m.Validate(map[string]any{"path": "/tmp/x", "state": "bogus"})
	if err == nil {
		t.Fatal("expected error for unsupported state")
	}
}

func TestFileValidateLinkRequiresSrc(t *testing.T) {
	m := &FileModule{}
	err := m.Validate(map[string]any{"path": "/tmp/x", "state": "link"})
	if err == nil {
		t.Fatal("expected error: state=link without src")
	}
	if err := m.Validate(map[string]any{"path": "/tmp/x", "state": "link", "src": "/tmp/y"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
