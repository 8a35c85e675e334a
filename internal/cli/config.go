package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/shopfloor-planner/internal/controller"
	"github.com/ChuLiYu/shopfloor-planner/internal/planner"
	"github.com/ChuLiYu/shopfloor-planner/internal/solver"
)

// defaultConfigPath is used when --config is not given. A missing file at
// this path means built-in defaults.
const defaultConfigPath = "configs/default.yaml"

// ErrInvalidConfig reports a config value outside its domain.
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Solver struct {
		TimeLimit     time.Duration   `yaml:"time_limit"`
		BranchLimit   int64           `yaml:"branch_limit"`
		HorizonBuffer int64           `yaml:"horizon_buffer"`
		Weights       planner.Weights `yaml:"weights"`
	} `yaml:"solver"`

	Server struct {
		GRPCPort int `yaml:"grpc_port"`
		HTTPPort int `yaml:"http_port"`
	} `yaml:"server"`

	Batch struct {
		Workers int `yaml:"workers"`
	} `yaml:"batch"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // text, json
	} `yaml:"log"`
}

// defaultConfig mirrors configs/default.yaml.
func defaultConfig() *Config {
	cfg := &Config{}
	opts := planner.DefaultOptions()
	params := solver.DefaultParams()

	cfg.Solver.TimeLimit = params.TimeLimit
	cfg.Solver.BranchLimit = params.BranchLimit
	cfg.Solver.HorizonBuffer = opts.HorizonBuffer
	cfg.Solver.Weights = opts.Weights
	cfg.Server.GRPCPort = 50051
	cfg.Server.HTTPPort = 8080
	cfg.Batch.Workers = 4
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// loadConfig reads path over the defaults. Fields absent from the file keep
// their default value.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	w := c.Solver.Weights
	switch {
	case c.Solver.TimeLimit < 0:
		return fmt.Errorf("%w: solver.time_limit %s is negative", ErrInvalidConfig, c.Solver.TimeLimit)
	case c.Solver.BranchLimit < 0:
		return fmt.Errorf("%w: solver.branch_limit %d is negative", ErrInvalidConfig, c.Solver.BranchLimit)
	case c.Solver.HorizonBuffer < 0:
		return fmt.Errorf("%w: solver.horizon_buffer %d is negative", ErrInvalidConfig, c.Solver.HorizonBuffer)
	case w.Tardiness < 0 || w.Makespan < 0 || w.Start < 0:
		return fmt.Errorf("%w: solver.weights must be non-negative", ErrInvalidConfig)
	case c.Batch.Workers < 0:
		return fmt.Errorf("%w: batch.workers %d is negative", ErrInvalidConfig, c.Batch.Workers)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// controllerConfig maps the file sections onto the controller.
func (c *Config) controllerConfig() controller.Config {
	return controller.Config{
		Planner: planner.Options{
			HorizonBuffer: c.Solver.HorizonBuffer,
			Weights:       c.Solver.Weights,
		},
		Solver: solver.Params{
			TimeLimit:   c.Solver.TimeLimit,
			BranchLimit: c.Solver.BranchLimit,
		},
	}
}

// ============================================================================
// Logging
// ============================================================================

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, s)
	}
	return level, nil
}

// newLogger builds the process logger. Timestamps are UTC RFC3339Nano.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), nil
}

// setupLogging installs the process logger as slog.Default. Packages look the
// default up on every call; plain log.Print output is bridged at level.
func setupLogging(w io.Writer, level, format string) error {
	l, err := newLogger(w, level, format)
	if err != nil {
		return err
	}
	lvl, _ := parseLevel(level)
	slog.SetDefault(l)
	slog.SetLogLoggerLevel(lvl)
	return nil
}
