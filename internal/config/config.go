// Package config loads the rail-planner process configuration from a YAML
// file and the environment.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/signalsfoundry/rail-planner/internal/logging"
	"github.com/signalsfoundry/rail-planner/internal/observability"
	"github.com/signalsfoundry/rail-planner/internal/optimizer"
	"github.com/signalsfoundry/rail-planner/internal/sim"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig                `yaml:"server"`
	Logging    logging.Config              `yaml:"logging"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
	Optimizer  optimizer.Config            `yaml:"optimizer"`
	Simulation SimulationConfig            `yaml:"simulation"`
	Files      FilesConfig                 `yaml:"files"`
}

// ServerConfig holds listener addresses.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SimulationConfig is sim.Config plus the initial layout. An empty
// Positions list means sim.DefaultPositionSpecs.
type SimulationConfig struct {
	sim.Config `yaml:",inline"`
	Positions  []sim.PositionSpec `yaml:"positions"`
	AutoStart  bool               `yaml:"auto_start"`
}

// FilesConfig points at the network and fleet data files. Empty paths fall
// back to the built-in sample data.
type FilesConfig struct {
	Network string `yaml:"network"`
	Fleet   string `yaml:"fleet"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			MetricsAddr:     ":9090",
			ShutdownTimeout: 5 * time.Second,
		},
		Logging:    logging.Config{Level: "info", Format: "text"},
		Tracing:    observability.DefaultTracingConfig(),
		Optimizer:  optimizer.DefaultConfig(),
		Simulation: SimulationConfig{Config: sim.DefaultConfig()},
	}
}

// Load reads path (when non-empty) over the defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if cfg, err = Parse(bytes.NewReader(data)); err != nil {
			return Config{}, fmt.Errorf("config %q: %w", path, err)
		}
	}
	return ApplyEnv(cfg, os.Getenv)
}

// Parse decodes YAML from r over the defaults. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays RAIL_*, LOG_* and RAIL_TRACING_* variables read through
// getenv.
func ApplyEnv(cfg Config, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("RAIL_HTTP_ADDR", &cfg.Server.HTTPAddr)
	set("RAIL_GRPC_ADDR", &cfg.Server.GRPCAddr)
	set("RAIL_METRICS_ADDR", &cfg.Server.MetricsAddr)
	set("RAIL_NETWORK_FILE", &cfg.Files.Network)
	set("RAIL_FLEET_FILE", &cfg.Files.Fleet)
	set("LOG_LEVEL", &cfg.Logging.Level)
	set("LOG_FORMAT", &cfg.Logging.Format)

	if raw := getenv("RAIL_TICK"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("RAIL_TICK: invalid duration %q", raw)
		}
		cfg.Simulation.TickPeriod = d
	}

	cfg.Tracing = observability.TracingConfigFromLookup(cfg.Tracing, getenv)
	return cfg, cfg.Validate()
}

// Validate rejects settings the engines cannot run with.
func (c Config) Validate() error {
	if c.Simulation.TickPeriod <= 0 {
		return fmt.Errorf("simulation.tick_period must be positive")
	}
	if c.Simulation.CriticalThreshold > c.Simulation.ProximityThreshold {
		return fmt.Errorf("simulation.critical_threshold %.3f exceeds proximity_threshold %.3f",
			c.Simulation.CriticalThreshold, c.Simulation.ProximityThreshold)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Tracing.Validate(); err != nil {
		return err
	}
	for i, p := range c.Simulation.Positions {
		if p.TrainID == 0 {
			return fmt.Errorf("simulation.positions[%d]: train_id is required", i)
		}
	}
	return nil
}
