package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ctpy/internal/config"
	"ctpy/internal/logging"
	"ctpy/internal/metrics"
	"ctpy/pkg/ctpy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ctpyctl",
		Short: "Coarse-grain cultural transmission samples into classes and statistics",
		Long: `ctpyctl builds trait classifications, classifies simulator samples under
them and derives per-generation, per-run and per-trait statistics.

Stages record their completion per experiment and refuse to run twice
unless --force is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("store", "", "Store backend: memory, sqlite or postgres")
	flags.String("db-path", "", "SQLite file path or Postgres connection string")
	flags.String("log-level", "", "Log level: info, debug or trace")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool("json", false, "Print results as JSON")

	root.AddCommand(
		newInitCmd(),
		newPlanCmd(),
		newConstructCmd(),
		newImportCmd(),
		newSubsampleCmd(),
		newClassifyCmd(),
		newSimRunStatsCmd(),
		newTraitStatsCmd(),
		newRetrofitCmd(),
		newExportCmd(),
		newRunCmd(),
		newTrackingCmd(),
	)
	return root
}

// loadConfig reads --config and the CTPY_* environment, then applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Kind = v
	}
	if v, _ := cmd.Flags().GetString("db-path"); v != "" {
		cfg.Store.DSN = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.Metrics.Addr = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openClient builds a client from flags and starts the metrics endpoint when configured.
// The returned close function stops both.
func openClient(cmd *cobra.Command) (*ctpy.Client, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Logging.Level, cmd.ErrOrStderr())

	var recorder *metrics.Recorder
	ctx, cancel := context.WithCancel(cmd.Context())
	served := make(chan struct{})
	if cfg.Metrics.Addr != "" {
		recorder = metrics.NewRecorder()
		go func() {
			defer close(served)
			if err := recorder.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error("metrics endpoint stopped", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
	} else {
		close(served)
	}

	client, err := ctpy.New(ctpy.Options{Config: cfg, Logger: logger, Metrics: recorder})
	if err != nil {
		cancel()
		<-served
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("close store", "err", err)
		}
		cancel()
		<-served
	}
	return client, closeFn, nil
}

func printResult(cmd *cobra.Command, v any, text string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(out, text)
	return err
}
