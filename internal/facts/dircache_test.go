package facts

import "testing"

func TestDirCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDirCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	entry := &Entry{Host: "web01", Subset: "default", Data: map[string]any{"ansible_system": "Linux"}}
	if err := c.PutEntry(entry); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get("web01", "default")
	if err != nil || !ok {
		t.Fatalf("expected cache hit, got ok=%v err=%v", ok, err)
	}
	if got.Data["ansible_system"] != "Linux" {
		t.Fatalf("unexpected data: %+v", got.Data)
	}
}

func TestDirCacheMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDirCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := c.Get("nope", "default")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected cache miss")
	}
}

func TestDirCachePutKeyAccumulates(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDirCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("web01", "app_version", "1.2.3"); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("web01", "build_id", "42"); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get("web01", "dynamic")
	if err != nil || !ok {
		t.Fatalf("expected dynamic entry, ok=%v err=%v", ok, err)
	}
	if got.Data["app_version"] != "1.2.3" || got.Data["build_id"] != "42" {
		t.Fatalf("unexpected accumulated data: %+v", got.Data)
	}
}
