// Package config provides configuration loading for cultsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/cultsim/internal/engine"
	"github.com/talgya/cultsim/internal/entropy"
	"github.com/talgya/cultsim/internal/environment"
	"github.com/talgya/cultsim/internal/logging"
)

// Config contains all cultsim configuration settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Output  OutputConfig  `yaml:"output"`
	Server  ServerConfig  `yaml:"server"`

	// Per-model parameters and run settings.
	Unbiased     UnbiasedConfig     `yaml:"unbiased"`
	IndirectBias IndirectBiasConfig `yaml:"indirect_bias"`
	Directional  DirectionalConfig  `yaml:"directional"`
	RandomWalk   RandomWalkConfig   `yaml:"random_walk"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	// Level sets the verbosity: "warn", "info" (default), "debug" or "trace".
	Level string `yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `yaml:"format"`
}

// OutputConfig controls how the CLI writes the result table.
type OutputConfig struct {
	// Path of the CSV file; "-" or empty writes to stdout.
	Path string `yaml:"path"`

	// Mean appends the per-generation mean as a final column.
	Mean bool `yaml:"mean"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// RunsPerHour is the per-IP budget of simulation requests.
	RunsPerHour int `yaml:"runs_per_hour"`

	// MaxWork caps generations × replicates × population size of one request.
	MaxWork int `yaml:"max_work"`

	// CORSOrigins lists extra allowed browser origins.
	CORSOrigins []string `yaml:"cors_origins"`

	// TrustedProxies lists reverse-proxy IPs whose X-Forwarded-For header
	// identifies the client. Requests from any other peer are keyed by
	// their own address.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// RunConfig holds the settings shared by every model.
type RunConfig struct {
	Generations int    `yaml:"generations"`
	Replicates  int    `yaml:"replicates"`
	Seed        *int64 `yaml:"seed,omitempty"` // nil draws a fresh seed per run
	Streams     string `yaml:"streams"`        // "shared" or "per-replicate"
	Workers     int    `yaml:"workers"`
}

// UnbiasedConfig parameterises unbiased transmission.
type UnbiasedConfig struct {
	RunConfig `yaml:",inline"`
	N         int     `yaml:"n"`
	P0        float64 `yaml:"p0"`
}

// IndirectBiasConfig parameterises success-biased transmission.
type IndirectBiasConfig struct {
	RunConfig `yaml:",inline"`
	N         int     `yaml:"n"`
	S         float64 `yaml:"s"`
	P0        float64 `yaml:"p0"`
}

// DirectionalConfig parameterises the directional-selection trend.
type DirectionalConfig struct {
	RunConfig `yaml:",inline"`
	X0        float64 `yaml:"x0"`
	C         float64 `yaml:"c"`
	Sigma     float64 `yaml:"sigma"`
	Noise     string  `yaml:"noise"` // "gaussian" or "simplex"
}

// RandomWalkConfig parameterises the biased random walk. Replicates is the
// number of trajectories.
type RandomWalkConfig struct {
	RunConfig `yaml:",inline"`
	Bias      float64 `yaml:"bias"`
	StartMin  int     `yaml:"start_min"`
	StartMax  int     `yaml:"start_max"`
}

func seed(v int64) *int64 { return &v }

// Default returns a Config whose model sections match the classroom presets.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Output:  OutputConfig{Path: "-"},
		Server: ServerConfig{
			Addr:        ":8080",
			RunsPerHour: 120,
			MaxWork:     50_000_000,
		},
		Unbiased: UnbiasedConfig{
			RunConfig: RunConfig{Generations: 200, Replicates: 5},
			N:         100,
			P0:        0.5,
		},
		IndirectBias: IndirectBiasConfig{
			RunConfig: RunConfig{Generations: 150, Replicates: 10},
			N:         1000,
			S:         0.1,
			P0:        0.01,
		},
		Directional: DirectionalConfig{
			RunConfig: RunConfig{Generations: 1000, Replicates: 1, Seed: seed(123)},
			X0:        5.0,
			C:         0.015,
			Noise:     "gaussian",
		},
		RandomWalk: RandomWalkConfig{
			RunConfig: RunConfig{Generations: 1000, Replicates: 1, Seed: seed(1055)},
			StartMin:  engine.DefaultWalkStartMin,
			StartMax:  engine.DefaultWalkStartMax,
		},
	}
}

// Load loads configuration from the default location and environment variables.
// Order: defaults -> ~/.cultsim/config.yaml -> environment variables
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(homeDir, ".cultsim", "config.yaml")
		if _, statErr := os.Stat(path); statErr == nil {
			cfg, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			return cfg, nil
		}
	}

	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file layered over the defaults,
// then applies environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies CULTSIM_* environment variables to the config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CULTSIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CULTSIM_SEED: %w", err)
		}
		for _, rc := range cfg.runConfigs() {
			rc.Seed = seed(n)
		}
	}
	if v := os.Getenv("CULTSIM_STREAMS"); v != "" {
		for _, rc := range cfg.runConfigs() {
			rc.Streams = v
		}
	}
	if v := os.Getenv("CULTSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CULTSIM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CULTSIM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	return nil
}

func (c *Config) runConfigs() []*RunConfig {
	return []*RunConfig{
		&c.Unbiased.RunConfig,
		&c.IndirectBias.RunConfig,
		&c.Directional.RunConfig,
		&c.RandomWalk.RunConfig,
	}
}

// Validate checks that the configuration is valid, including every model section.
func (c *Config) Validate() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace)", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "text" && f != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}
	if c.Server.RunsPerHour < 1 {
		return fmt.Errorf("runs_per_hour must be >= 1, got %d", c.Server.RunsPerHour)
	}
	if c.Server.MaxWork < 1 {
		return fmt.Errorf("max_work must be >= 1, got %d", c.Server.MaxWork)
	}

	for _, name := range engine.ModelNames {
		m, rc, err := c.Model(name)
		if err != nil {
			return err
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		opts, err := rc.Options()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := opts.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Model builds the named model from its config section and returns the
// section's run settings alongside it.
func (c *Config) Model(name string) (engine.Model, RunConfig, error) {
	switch name {
	case engine.ModelUnbiased:
		u := c.Unbiased
		return engine.Unbiased{N: u.N, P0: u.P0}, u.RunConfig, nil
	case engine.ModelIndirectBias:
		b := c.IndirectBias
		return engine.IndirectBias{N: b.N, S: b.S, P0: b.P0}, b.RunConfig, nil
	case engine.ModelDirectional:
		d := c.Directional
		kind, err := environment.ParseKind(d.Noise)
		if err != nil {
			return nil, RunConfig{}, fmt.Errorf("%w: %w", engine.ErrInvalidParameter, err)
		}
		return engine.Directional{X0: d.X0, C: d.C, Sigma: d.Sigma, Noise: kind}, d.RunConfig, nil
	case engine.ModelRandomWalk:
		w := c.RandomWalk
		return engine.RandomWalk{Bias: w.Bias, StartMin: w.StartMin, StartMax: w.StartMax}, w.RunConfig, nil
	default:
		return nil, RunConfig{}, fmt.Errorf("%w: %q (valid: %s)", engine.ErrUnknownModel, name, strings.Join(engine.ModelNames, ", "))
	}
}

// Options converts run settings into engine options. An unset seed is
// drawn fresh, so only pinned seeds reproduce.
func (rc RunConfig) Options() (engine.Options, error) {
	streams, err := engine.ParseStreams(rc.Streams)
	if err != nil {
		return engine.Options{}, err
	}
	s := entropy.RandomSeed()
	if rc.Seed != nil {
		s = *rc.Seed
	}
	return engine.Options{
		Generations: rc.Generations,
		Replicates:  rc.Replicates,
		Seed:        s,
		Streams:     streams,
		Workers:     rc.Workers,
	}, nil
}

// Work estimates the cost of one run as generations × replicates × population.
func (c *Config) Work(name string) int {
	m, rc, err := c.Model(name)
	if err != nil {
		return 0
	}
	n := 1
	switch v := m.(type) {
	case engine.Unbiased:
		n = v.N
	case engine.IndirectBias:
		n = v.N
	}
	w := float64(rc.Generations) * float64(rc.Replicates) * float64(n)
	if w >= math.MaxInt {
		return math.MaxInt
	}
	return int(w)
}
