package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/engine"
	"github.com/kestrelops/kestrel/internal/grpcapi"
	"github.com/kestrelops/kestrel/internal/journal"
	"github.com/kestrelops/kestrel/internal/logging"
	"github.com/kestrelops/kestrel/internal/observability/metrics"
	"github.com/kestrelops/kestrel/internal/observability/tracing"
)

func runCmd() *cobra.Command {
	var diff bool
	cmd := &cobra.Command{
		Use:   "run <playbook>",
		Short: "execute a playbook against the inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(args[0], false, diff)
		},
	}
	cmd.Flags().BoolVar(&diff, "diff", false, "show before/after state for changed tasks")
	return cmd
}

func checkCmd() *cobra.Command {
	var diff bool
	cmd := &cobra.Command{
		Use:   "check <playbook>",
		Short: "dry-run a playbook with check_mode=true",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(args[0], true, diff)
		},
	}
	cmd.Flags().BoolVar(&diff, "diff", false, "show before/after state for changed tasks")
	return cmd
}

// execute is the shared body of `run` and `check`: build the engine,
// attach the optional observers a run requested, load and run the
// playbook, print the recap, and translate the outcome to a process exit
// code (§6).
func execute(playbookPath string, checkMode, diffMode bool) error {
	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := engine.New(cfg, inventoryPath)
	if err != nil {
		return err
	}

	stopObservers, err := attachObservers(ctx, eng, cfg)
	if err != nil {
		return err
	}
	defer stopObservers()

	pb, err := engine.LoadPlaybook(playbookPath)
	if err != nil {
		return err
	}

	extraVars, err := parseExtraVars(extraVarsArgs)
	if err != nil {
		return err
	}

	opts := engine.Options{
		Limit:     limitPattern,
		ExtraVars: extraVars,
		Tags:      tags,
		SkipTags:  skipTags,
		CheckMode: checkMode,
		DiffMode:  diffMode,
	}

	summary, runErr := eng.RunPlaybook(ctx, pb, opts)
	eng.Bus.Close()

	printRecap(summary, runErr)

	code := summary.ExitCode(runErr)
	if code != 0 {
		return &exitError{code: code, err: runErr}
	}
	return nil
}

// exitError carries a pre-computed exit code past cobra's error printing
// path (main's Execute error handler only needs the code, not another
// "Error: ..." line when runErr is nil but hosts failed).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("kestrel: run finished with exit code %d", e.code)
}

func printRecap(summary *engine.Summary, runErr error) {
	if runErr != nil {
		logging.Op().Error("playbook run failed", "error", runErr)
		return
	}
	logging.Op().Info("playbook recap",
		"failed_hosts", summary.FailedHosts,
		"unreachable_hosts", summary.UnreachableHosts,
		"aborted", summary.Aborted)
}

// attachObservers wires the optional bus consumers a run requested
// (metrics, tracing, gRPC event stream, run journal) per SPEC_FULL §4.10;
// none of them are imported by internal/engine itself. The returned func
// shuts down whichever observers were actually started.
func attachObservers(ctx context.Context, eng *engine.Engine, cfg *config.Config) (func(), error) {
	var closers []func()

	if cfg.Observability.MetricsAddr != "" {
		collector := metrics.New("kestrel")
		go collector.Run(ctx, eng.Bus)
		srv := &httpServer{addr: cfg.Observability.MetricsAddr, handler: collector.Handler()}
		srv.start()
		closers = append(closers, srv.stop)
	}

	if cfg.Observability.TraceEndpoint != "" {
		provider, err := tracing.NewProvider(ctx, tracing.Config{Enabled: true, Endpoint: cfg.Observability.TraceEndpoint})
		if err != nil {
			return nil, err
		}
		go provider.Run(ctx, eng.Bus)
		closers = append(closers, func() { _ = provider.Shutdown(context.Background()) })
	}

	if cfg.Observability.GRPCAddr != "" {
		srv := grpcapi.NewServer(eng.Bus)
		if err := srv.Start(cfg.Observability.GRPCAddr); err != nil {
			return nil, err
		}
		closers = append(closers, srv.Stop)
	}

	if cfg.Journal.PgDSN != "" {
		sink, err := journal.NewPostgresSink(ctx, cfg.Journal.PgDSN)
		if err != nil {
			return nil, err
		}
		go journal.Run(ctx, eng.Bus, sink, runID(), time.Now)
		closers = append(closers, func() { _ = sink.Close() })
	} else if cfg.Journal.FilePath != "" {
		sink, err := journal.NewFileSink(cfg.Journal.FilePath)
		if err != nil {
			return nil, err
		}
		go journal.Run(ctx, eng.Bus, sink, runID(), time.Now)
		closers = append(closers, func() { _ = sink.Close() })
	}

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

func runID() string {
	return uuid.NewString()
}
