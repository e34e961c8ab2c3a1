// Package config loads the engine's process-wide configuration: forks,
// connection retry/circuit-breaker policy, hash-merge mode, fact cache
// settings, vault defaults and observability toggles. It follows the
// teacher's layering: typed defaults, then an optional YAML file, then
// environment overrides, then CLI flags (applied by the caller).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HashMergePolicy selects how colliding variable mappings combine (§4.2).
type HashMergePolicy string

const (
	HashMergeReplace HashMergePolicy = "replace"
	HashMergeMerge   HashMergePolicy = "merge"
)

// PoolConfig configures the connection pool (C1).
type PoolConfig struct {
	SessionsPerHost   int           `yaml:"sessions_per_host" json:"sessions_per_host"`
	IdleTTL           time.Duration `yaml:"idle_ttl" json:"idle_ttl"`
	ConnectRetries    int           `yaml:"connect_retries" json:"connect_retries"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	LeaseTimeout      time.Duration `yaml:"lease_timeout" json:"lease_timeout"`
	HostKeyPolicy     string        `yaml:"host_key_policy" json:"host_key_policy"` // strict | accept-new | off
	KnownHostsFile    string        `yaml:"known_hosts_file" json:"known_hosts_file"`
}

// BreakerConfig configures the per-host circuit breaker (§4.1).
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	OpenCooldown     time.Duration `yaml:"open_cooldown" json:"open_cooldown"`
	MaxCooldown      time.Duration `yaml:"max_cooldown" json:"max_cooldown"`
}

// FactsConfig configures the fact pipeline and cache (C7).
type FactsConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
	CacheBackend  string        `yaml:"cache_backend" json:"cache_backend"` // dir | redis
	CacheDir      string        `yaml:"cache_dir" json:"cache_dir"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
}

// JournalConfig configures the run journal (§6 persisted state).
type JournalConfig struct {
	FilePath string `yaml:"file_path" json:"file_path"`
	PgDSN    string `yaml:"pg_dsn" json:"pg_dsn"`
}

// ObservabilityConfig toggles the optional observer implementations (C9
// concrete collaborators wired only from cmd/kestrel, per SPEC_FULL §4.10).
type ObservabilityConfig struct {
	MetricsAddr   string  `yaml:"metrics_addr" json:"metrics_addr"`
	TraceEndpoint string  `yaml:"trace_endpoint" json:"trace_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate" json:"trace_sample_rate"`
	GRPCAddr      string  `yaml:"grpc_addr" json:"grpc_addr"`
}

// Config is the root engine configuration.
type Config struct {
	Forks              int             `yaml:"forks" json:"forks"`
	HashMerge          HashMergePolicy `yaml:"hash_merge" json:"hash_merge"`
	DefaultStrategy    string          `yaml:"default_strategy" json:"default_strategy"`
	IgnoreMissingHandlers bool         `yaml:"ignore_missing_handlers" json:"ignore_missing_handlers"`

	Pool    PoolConfig    `yaml:"pool" json:"pool"`
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
	Facts   FactsConfig   `yaml:"facts" json:"facts"`
	Journal JournalConfig `yaml:"journal" json:"journal"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Forks:           5,
		HashMerge:       HashMergeReplace,
		DefaultStrategy: "linear",
		Pool: PoolConfig{
			SessionsPerHost: 3,
			IdleTTL:         30 * time.Second,
			ConnectRetries:  3,
			ConnectTimeout:  10 * time.Second,
			LeaseTimeout:    15 * time.Second,
			HostKeyPolicy:   "accept-new",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenCooldown:     10 * time.Second,
			MaxCooldown:      5 * time.Minute,
		},
		Facts: FactsConfig{
			Enabled:      true,
			TTL:          5 * time.Minute,
			CacheBackend: "dir",
			CacheDir:     defaultCacheDir(),
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func defaultCacheDir() string {
	if d, err := os.UserCacheDir(); err == nil {
		return d + "/kestrel/facts"
	}
	return ".kestrel-cache/facts"
}

// LoadFromFile decodes a YAML config file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment-variable overrides in place (§6).
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("KESTREL_FORKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forks = n
		}
	}
	if v := os.Getenv("KESTREL_HASH_MERGE"); v != "" {
		cfg.HashMerge = HashMergePolicy(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("KESTREL_FACTS_CACHE_BACKEND"); v != "" {
		cfg.Facts.CacheBackend = v
	}
	if v := os.Getenv("KESTREL_FACTS_REDIS_ADDR"); v != "" {
		cfg.Facts.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_JOURNAL_FILE"); v != "" {
		cfg.Journal.FilePath = v
	}
	if v := os.Getenv("KESTREL_JOURNAL_PG_DSN"); v != "" {
		cfg.Journal.PgDSN = v
	}
	// VAULT_PASSWORD and SSH_AUTH_SOCK are read directly where needed
	// (vault loader, credential resolver) rather than copied into Config,
	// matching the teacher's pattern of reading narrowly-scoped env vars
	// at the point of use instead of centralizing every secret in one
	// struct.
}
