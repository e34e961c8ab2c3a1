package facts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"github.com/kestrelops/kestrel/internal/pkg/crypto"
)

// DirCache stores one JSON file per (host, subset) under <dir>/<host>/<subset>.json
// (SPEC_FULL §4.11 default backend).
type DirCache struct {
	mu  sync.Mutex
	dir string
}

// NewDirCache returns a DirCache rooted at dir, creating it if necessary.
func NewDirCache(dir string) (*DirCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConfig, err)
	}
	return &DirCache{dir: dir}, nil
}

func (c *DirCache) pathFor(host, subset string) string {
	return filepath.Join(c.dir, host, subset+".json")
}

func (c *DirCache) Get(host, subset string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := os.ReadFile(c.pathFor(host, subset))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kestrelerr.New(kestrelerr.ClassInternal, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, kestrelerr.New(kestrelerr.ClassInternal, err)
	}
	return &e, true, nil
}

func (c *DirCache) PutEntry(e *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.pathFor(e.Host, e.Subset)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kestrelerr.New(kestrelerr.ClassInternal, err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return kestrelerr.New(kestrelerr.ClassInternal, err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func (c *DirCache) Put(host, key string, value any) error {
	c.mu.Lock()
	entry, found, _ := c.getLocked(host, "dynamic")
	c.mu.Unlock()
	if !found {
		entry = &Entry{Host: host, Subset: "dynamic", Data: map[string]any{}}
	}
	entry.Data[key] = value
	entry.GatheredAt = time.Now()
	entry.SourceHash = crypto.HashString(host + key)
	return c.PutEntry(entry)
}

func (c *DirCache) getLocked(host, subset string) (*Entry, bool, error) {
	raw, err := os.ReadFile(c.pathFor(host, subset))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, err
	}
	return &e, true, nil
}
