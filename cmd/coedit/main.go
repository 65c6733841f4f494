package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/coedit/internal/cmd/client"
	serverrun "github.com/rzbill/coedit/internal/cmd/server"
	cfgpkg "github.com/rzbill/coedit/internal/config"
	pebblestore "github.com/rzbill/coedit/internal/storage/pebble"
	logpkg "github.com/rzbill/coedit/pkg/log"
)

func main() {
	// initialize logger for CLI
	// Respect COEDIT_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("COEDIT_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := clientcmd.NewRoot(apiURL)
	rootCmd.Short = "coedit collaborative editing server and CLI"
	rootCmd.Long = "coedit runs the sharded collaborative editing backend and talks to it from a terminal."
	rootCmd.PersistentFlags().String("config", os.Getenv("COEDIT_CONFIG"), "Config file (JSON or YAML)")

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start coedit server (gRPC, HTTP and shard workers)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			noWorkers, _ := cmd.Flags().GetBool("no-workers")
			shards, _ := cmd.Flags().GetIntSlice("shards")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				GRPCAddr:      grpcAddr,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
				NoWorkers:     noWorkers,
				Shards:        shards,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("grpc", ":50051", "gRPC listen address")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().Bool("no-workers", false, "Do not consume shard streams in this process")
	serverStartCmd.Flags().IntSlice("shards", nil, "Shards served by in-process workers (default all)")
	addLogFlags(serverStartCmd)
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// worker run
	workerCmd := &cobra.Command{Use: "worker", Short: "Standalone shard worker commands"}
	workerRunCmd := &cobra.Command{
		Use:   "run",
		Short: "Consume shard streams from a shared redis store",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			shards, _ := cmd.Flags().GetIntSlice("shard")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.RunWorker(ctx, serverrun.WorkerOptions{
				DataDir: dataDir,
				Config:  cfg,
				Shards:  shards,
			}); err != nil {
				return fmt.Errorf("worker error: %w", err)
			}
			return nil
		},
	}
	workerRunCmd.Flags().String("data-dir", "", "Data directory for room files")
	workerRunCmd.Flags().IntSlice("shard", nil, "Shard to consume; repeatable (default all)")
	addLogFlags(workerRunCmd)
	workerCmd.AddCommand(workerRunCmd)
	rootCmd.AddCommand(workerCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	cmd.Flags().String("log-format", "", "Log format: text|json (default text)")
}

// loadConfig reads --config, overlays COEDIT_* variables and then the log
// flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	return cfg, nil
}

func apiURL() string {
	if v := os.Getenv("COEDIT_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
