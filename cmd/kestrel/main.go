package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/logging"
)

var (
	inventoryPath   string
	limitPattern    string
	extraVarsArgs   []string
	forks           int
	tags            []string
	skipTags        []string
	vaultPasswordFile string
	verbosity       int
	configFile      string

	metricsAddr     string
	traceEndpoint   string
	grpcAddr        string
	journalFile     string
	journalPgDSN    string
	factsCacheBackend string
	factsRedisAddr  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kestrel",
		Short: "kestrel runs SSH-based configuration playbooks against an inventory",
	}

	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "i", "inventory.yml", "inventory file (YAML, JSON, or INI)")
	rootCmd.PersistentFlags().StringVarP(&limitPattern, "limit", "l", "", "host pattern narrowing a play's own hosts")
	rootCmd.PersistentFlags().StringArrayVarP(&extraVarsArgs, "extra-vars", "e", nil, "extra variables as key=value (repeatable), highest precedence")
	rootCmd.PersistentFlags().IntVar(&forks, "forks", 0, "max concurrent hosts (0 = use config default)")
	rootCmd.PersistentFlags().StringSliceVar(&tags, "tags", nil, "only run tasks with one of these tags")
	rootCmd.PersistentFlags().StringSliceVar(&skipTags, "skip-tags", nil, "skip tasks with one of these tags")
	rootCmd.PersistentFlags().StringVar(&vaultPasswordFile, "vault-password-file", "", "file holding the vault password")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file layered under flags/env")

	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP/HTTP trace collector endpoint (empty disables)")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc-addr", "", "address to serve the playbook event stream on (empty disables)")
	rootCmd.PersistentFlags().StringVar(&journalFile, "journal-file", "", "append-only run journal path (empty disables)")
	rootCmd.PersistentFlags().StringVar(&journalPgDSN, "journal-pg-dsn", "", "Postgres DSN for the run journal (overrides --journal-file)")
	rootCmd.PersistentFlags().StringVar(&factsCacheBackend, "facts-cache-backend", "", "fact cache backend: dir or redis")
	rootCmd.PersistentFlags().StringVar(&factsRedisAddr, "facts-cache-redis-addr", "", "redis address when --facts-cache-backend=redis")

	rootCmd.AddCommand(
		runCmd(),
		checkCmd(),
		inventoryCmd(),
		vaultCmd(),
		treeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeForErr(err))
	}
}

// loadConfig layers CLI flags over environment over an optional file over
// DefaultConfig (§6, following the teacher's config precedence).
func loadConfig() *config.Config {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kestrel: config file %s: %v\n", configFile, err)
			cfg = config.DefaultConfig()
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)

	if forks > 0 {
		cfg.Forks = forks
	}
	if journalFile != "" {
		cfg.Journal.FilePath = journalFile
	}
	if journalPgDSN != "" {
		cfg.Journal.PgDSN = journalPgDSN
	}
	if factsCacheBackend != "" {
		cfg.Facts.CacheBackend = factsCacheBackend
	}
	if factsRedisAddr != "" {
		cfg.Facts.RedisAddr = factsRedisAddr
	}
	cfg.Observability.MetricsAddr = metricsAddr
	cfg.Observability.TraceEndpoint = traceEndpoint
	cfg.Observability.GRPCAddr = grpcAddr

	switch {
	case verbosity >= 3:
		cfg.LogLevel = "debug"
	case verbosity >= 1:
		cfg.LogLevel = "info"
	}
	logging.InitStructured(cfg.LogFormat, cfg.LogLevel)

	return cfg
}

func vaultPassword() (string, error) {
	if v := os.Getenv("VAULT_PASSWORD"); v != "" {
		return v, nil
	}
	if vaultPasswordFile != "" {
		data, err := os.ReadFile(vaultPasswordFile)
		if err != nil {
			return "", fmt.Errorf("kestrel: read vault password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	return "", fmt.Errorf("kestrel: no vault password available (set VAULT_PASSWORD or --vault-password-file)")
}
