package module

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyValidateRequiresSrcOrContent(t *testing.T) {
	m := &CopyModule{}
	if err := m.Validate(map[string]any{"dest": "/etc/app.conf"}); err == nil {
		t.Fatal("expected error when neither src nor content is set")
	}
}

func TestCopyRejectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	m := &CopyModule{}
	res := m.Execute(map[string]any{
		"dest":     "/etc/app.conf",
		"src":      src,
		"checksum": "deadbeefdeadbeef",
	}, ExecContext{})
	if !res.Failed {
		t.Fatalf("expected checksum mismatch to fail, got %+v", res)
	}
}
