package facts

import (
	"time"

	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/module"
)

// Pipeline runs C7's gather-before-play step: check the cache, and only
// invoke the gather_facts module on a TTL miss (§3 Fact Set, §4.7).
type Pipeline struct {
	cache Cache
	ttl   time.Duration
}

// NewPipeline builds a Pipeline from FactsConfig, choosing the cache
// backend by name.
func NewPipeline(cfg config.FactsConfig) (*Pipeline, error) {
	var cache Cache
	switch cfg.CacheBackend {
	case "redis":
		cache = NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
	default:
		dc, err := NewDirCache(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		cache = dc
	}
	return &Pipeline{cache: cache, ttl: cfg.TTL}, nil
}

// Cache exposes the underlying cache for the variable resolver's
// cacheable-fact write path.
func (p *Pipeline) Cache() Cache { return p.cache }

// Gather returns the host's "default" fact set, reusing a cached entry if
// it is within TTL, otherwise dispatching gather_facts and caching the
// result.
func (p *Pipeline) Gather(host *domain.Host, gatherModule module.Module, ctx module.ExecContext) (map[string]any, error) {
	const subset = "default"
	if entry, ok, err := p.cache.Get(host.Name, subset); err == nil && ok {
		if time.Since(entry.GatheredAt) < p.ttl {
			return entry.Data, nil
		}
	}

	res := gatherModule.Execute(map[string]any{}, ctx)
	if res.Failed {
		return nil, nil
	}
	entry := &Entry{Host: host.Name, Subset: subset, Data: res.Data, GatheredAt: time.Now()}
	_ = p.cache.PutEntry(entry)
	return res.Data, nil
}
