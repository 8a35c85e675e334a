// ============================================================================
// Shopfloor Planner CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   planner                        # Root command
//   ├── solve                      # Solve one scheduling request
//   │   ├── --file, -f            # Request JSON file ("-" for stdin)
//   │   ├── --render              # Print a terminal timeline instead of JSON
//   │   └── --remote              # Solve on a running server (gRPC address)
//   ├── simulate                   # Run a what-if scenario
//   │   ├── --file, -f            # SimulateRequest JSON file
//   │   └── --remote              # Simulate on a running server
//   ├── batch                      # Solve independent requests concurrently
//   │   ├── --file, -f (repeated) # Request JSON files
//   │   └── --workers             # Worker pool size
//   ├── serve                      # Start gRPC + HTTP servers
//   ├── status                     # Show effective configuration
//   ├── --config, -c              # Config file (default: configs/default.yaml)
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml)
//   Configuration items include:
//   - solver: time/branch budget, horizon buffer, objective weights
//   - server: gRPC and HTTP ports
//   - batch: default worker count
//   - metrics: Prometheus monitoring configuration
//   - log: level and format
//
// Output:
//   solve / simulate / batch write JSON to stdout, logs go to stderr.
//   An infeasible request is a normal result (status "failed"), the
//   command still exits 0.
//
// Signal Handling:
//   serve captures SIGINT / SIGTERM and gracefully stops both servers.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/shopfloor-planner/internal/controller"
	"github.com/ChuLiYu/shopfloor-planner/internal/metrics"
	"github.com/ChuLiYu/shopfloor-planner/internal/render"
	"github.com/ChuLiYu/shopfloor-planner/internal/server"
	"github.com/ChuLiYu/shopfloor-planner/pkg/types"
)

// remoteTimeout bounds one remote call; the server side budget is 10s by default.
const remoteTimeout = time.Minute

var configFile = defaultConfigPath

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "planner",
		Short: "Shopfloor Planner: constraint-based production scheduling",
		Long: `Shopfloor Planner schedules multi-task jobs onto lines and operators:
- weighted tardiness first, then makespan
- setup times, availability windows and manual start pins
- what-if scenarios with impact analysis
- gRPC and HTTP transport, Prometheus metrics`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	rootCmd.AddCommand(buildSolveCommand())
	rootCmd.AddCommand(buildSimulateCommand())
	rootCmd.AddCommand(buildBatchCommand())
	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// prepare loads the config and installs the logger on stderr.
func prepare(cmd *cobra.Command) (*Config, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := setupLogging(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ============================================================================
// solve
// ============================================================================

func buildSolveCommand() *cobra.Command {
	var file string
	var renderTimeline bool
	var remote string

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a scheduling request",
		Long:  "Read a scheduling request from a JSON file and print the schedule. Use --remote to solve on a running server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepare(cmd)
			if err != nil {
				return err
			}

			var req types.Request
			if err := readJSON(cmd.InOrStdin(), file, &req); err != nil {
				return err
			}

			var res types.SolveResult
			if remote != "" {
				res, err = solveRemote(cmd.Context(), remote, req)
				if err != nil {
					return err
				}
			} else {
				res = controller.NewController(cfg.controllerConfig(), nil).Solve(req)
			}

			if renderTimeline {
				_, err := fmt.Fprint(cmd.OutOrStdout(), render.Timeline(res, render.Options{}))
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file containing the request (- for stdin)")
	cmd.Flags().BoolVar(&renderTimeline, "render", false, "print a terminal timeline instead of JSON")
	cmd.Flags().StringVar(&remote, "remote", "", "server address (e.g. localhost:50051) for remote solving")
	cmd.MarkFlagRequired("file")

	return cmd
}

func solveRemote(ctx context.Context, addr string, req types.Request) (types.SolveResult, error) {
	conn, err := server.Dial(addr)
	if err != nil {
		return types.SolveResult{}, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctxOrBackground(ctx), remoteTimeout)
	defer cancel()
	return server.NewClient(conn).Solve(ctx, req)
}

// ============================================================================
// simulate
// ============================================================================

func buildSimulateCommand() *cobra.Command {
	var file string
	var remote string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a what-if scenario",
		Long:  "Apply the scenario modifications to the current request, re-solve and print the impact analysis.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepare(cmd)
			if err != nil {
				return err
			}

			var req types.SimulateRequest
			if err := readJSON(cmd.InOrStdin(), file, &req); err != nil {
				return err
			}

			if remote == "" {
				res := controller.NewController(cfg.controllerConfig(), nil).Simulate(req)
				return writeJSON(cmd.OutOrStdout(), res)
			}

			conn, err := server.Dial(remote)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(ctxOrBackground(cmd.Context()), remoteTimeout)
			defer cancel()
			res, err := server.NewClient(conn).Simulate(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file containing the simulate request (- for stdin)")
	cmd.Flags().StringVar(&remote, "remote", "", "server address (e.g. localhost:50051) for remote simulation")
	cmd.MarkFlagRequired("file")

	return cmd
}

// ============================================================================
// batch
// ============================================================================

// batchEntry is one line of the batch summary.
type batchEntry struct {
	ID                string       `json:"id"`
	Status            types.Status `json:"status"`
	Makespan          int64        `json:"makespan"`
	WeightedTardiness int64        `json:"tardiness"`
	Duration          string       `json:"duration"`
	Error             string       `json:"error,omitempty"`
	Logs              []string     `json:"logs,omitempty"`
}

func buildBatchCommand() *cobra.Command {
	var files []string
	var workers int

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Solve independent requests concurrently",
		Long:  "Solve every request file through the worker pool. Each solve stays deterministic; results keep the file order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepare(cmd)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Batch.Workers
			}
			return runBatch(cmd.OutOrStdout(), cfg, append(files, args...), workers)
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "request JSON file (repeatable)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (default from config)")

	return cmd
}

func runBatch(out io.Writer, cfg *Config, files []string, workers int) error {
	if len(files) == 0 {
		return fmt.Errorf("at least one request file is required (use --file or -f)")
	}

	ids := make([]string, 0, len(files))
	reqs := make([]types.Request, 0, len(files))
	for _, f := range files {
		var req types.Request
		if err := readJSON(nil, f, &req); err != nil {
			return err
		}
		ids = append(ids, strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)))
		reqs = append(reqs, req)
	}

	ctrl := controller.NewController(cfg.controllerConfig(), nil)
	results, err := ctrl.SolveBatch(ids, reqs, workers)
	if err != nil {
		return err
	}

	entries := make([]batchEntry, 0, len(results))
	for _, r := range results {
		e := batchEntry{
			ID:                r.ID,
			Status:            r.Solve.Status,
			Makespan:          r.Solve.Makespan,
			WeightedTardiness: r.Solve.WeightedTardiness,
			Duration:          r.Duration.Round(time.Millisecond).String(),
		}
		if r.Error != nil {
			e.Error = r.Error.Error()
		}
		if !r.Solve.Succeeded() {
			e.Logs = r.Solve.Logs
		}
		entries = append(entries, e)
	}
	return writeJSON(out, entries)
}

// ============================================================================
// serve
// ============================================================================

func buildServeCommand() *cobra.Command {
	var grpcPort, httpPort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the planning servers",
		Long:  "Serve planner.v1.PlanningService over gRPC and the JSON endpoints over HTTP until SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := prepare(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grpc-port") {
				cfg.Server.GRPCPort = grpcPort
			}
			if cmd.Flags().Changed("http-port") {
				cfg.Server.HTTPPort = httpPort
			}

			ctx, stop := signal.NotifyContext(ctxOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&grpcPort, "grpc-port", 50051, "gRPC port (0 disables)")
	cmd.Flags().IntVar(&httpPort, "http-port", 8080, "HTTP port (0 disables)")

	return cmd
}

func runServer(ctx context.Context, cfg *Config) error {
	collector := metrics.NewCollector(nil)
	ctrl := controller.NewController(cfg.controllerConfig(), collector)
	srv := server.NewServer(ctrl)

	// Start Metrics
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.HTTPPort {
		go func() {
			slog.Info("Starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				slog.Error("Metrics server error", "error", err)
			}
		}()
	}

	addrs := server.Config{}
	if cfg.Server.GRPCPort > 0 {
		addrs.GRPCAddr = fmt.Sprintf(":%d", cfg.Server.GRPCPort)
	}
	if cfg.Server.HTTPPort > 0 {
		addrs.HTTPAddr = fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	}

	slog.Info("Planner started",
		"grpc", addrs.GRPCAddr,
		"http", addrs.HTTPAddr,
		"time_limit", cfg.Solver.TimeLimit)

	if err := srv.Run(ctx, addrs, nil); err != nil {
		return err
	}
	slog.Info("Planner stopped. Goodbye!")
	return nil
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration status",
		Long:  "Display the configuration the planner would run with",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.OutOrStdout())
		},
	}
	return cmd
}

func showStatus(out io.Writer) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	p := func(format string, args ...any) { fmt.Fprintf(out, format, args...) }

	p("\n╔═══════════════════════════════════════════════════════════╗\n")
	p("║           Shopfloor Planner Status                        ║\n")
	p("╚═══════════════════════════════════════════════════════════╝\n\n")

	p("📋 Configuration:\n")
	p("  └─ Config File:     %s\n\n", configFile)

	p("🧮 Solver:\n")
	p("  ├─ Time Limit:      %s\n", cfg.Solver.TimeLimit)
	p("  ├─ Branch Limit:    %d\n", cfg.Solver.BranchLimit)
	p("  ├─ Horizon Buffer:  %d min\n", cfg.Solver.HorizonBuffer)
	p("  └─ Weights:         tardiness %d / makespan %d / start %d\n\n",
		cfg.Solver.Weights.Tardiness, cfg.Solver.Weights.Makespan, cfg.Solver.Weights.Start)

	p("🌐 Server:\n")
	p("  ├─ gRPC Port:       %d\n", cfg.Server.GRPCPort)
	p("  ├─ HTTP Port:       %d\n", cfg.Server.HTTPPort)
	p("  └─ Batch Workers:   %d\n\n", cfg.Batch.Workers)

	p("📡 Metrics:\n")
	if cfg.Metrics.Enabled {
		p("  └─ Status: ✅ Enabled on http://localhost:%d/metrics\n\n", cfg.Metrics.Port)
	} else {
		p("  └─ Status: ⚠️  Disabled\n\n")
	}

	p("═══════════════════════════════════════════════════════════\n")
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

// readJSON decodes path into v; "-" reads stdin.
func readJSON(stdin io.Reader, path string, v any) error {
	var data []byte
	var err error
	if path == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse request file %s: %w", path, err)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
