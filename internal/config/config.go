// Package config loads the YAML configuration shared by the serve and run
// commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/signalnine/npubench/internal/logging"
	"gopkg.in/yaml.v3"
)

// Runner backends.
const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

type Config struct {
	Server Server         `yaml:"server"`
	Client Client         `yaml:"client"`
	Log    logging.Config `yaml:"log"`
}

// Server configures the board side.
type Server struct {
	Listen       string        `yaml:"listen"`
	ModelDir     string        `yaml:"model_dir"`
	Runner       string        `yaml:"runner"`
	RunTimeout   time.Duration `yaml:"run_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	IOTimeout    time.Duration `yaml:"io_timeout"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	Backend      string        `yaml:"backend"`
	Docker       Docker        `yaml:"docker"`
}

// Docker configures the container backend. Mounts use the docker -v syntax
// "host:container[:ro]".
type Docker struct {
	Image    string   `yaml:"image"`
	CPUs     float64  `yaml:"cpus"`
	MemoryMB int64    `yaml:"memory_mb"`
	Mounts   []string `yaml:"mounts"`
	Devices  []string `yaml:"devices"`
	Network  string   `yaml:"network"`
}

// Client configures the driver host.
type Client struct {
	Server          string        `yaml:"server"`
	ModelDir        string        `yaml:"model_dir"`
	Models          []string      `yaml:"models"`
	ResultsDir      string        `yaml:"results_dir"`
	UseGolden       bool          `yaml:"use_golden"`
	ExecutionTimeMS int           `yaml:"execution_time_ms"`
	RepeatCount     int           `yaml:"repeat_count"`
	NPUCores        string        `yaml:"npu_cores"`
	PeakPerformance float64       `yaml:"peak_performance"`
	ExtraArgs       string        `yaml:"extra_args"`
	Pace            time.Duration `yaml:"pace"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	IOTimeout       time.Duration `yaml:"io_timeout"`
	WaitForServer   time.Duration `yaml:"wait_for_server"`
	Pushgateway     string        `yaml:"pushgateway"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Listen:       ":9999",
			ModelDir:     "models",
			Runner:       "npu_runner",
			RunTimeout:   180 * time.Second,
			PollInterval: time.Second,
			IOTimeout:    300 * time.Second,
			Backend:      BackendLocal,
		},
		Client: Client{
			ResultsDir:      "results",
			ExecutionTimeMS: -1,
			RepeatCount:     10,
			NPUCores:        "0,1,2,3",
			PeakPerformance: 4.0,
			Pace:            3 * time.Second,
			DialTimeout:     10 * time.Second,
			IOTimeout:       300 * time.Second,
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks field ranges and fills zero values that have defaults. It
// runs again after command-line overrides are applied.
func (cfg *Config) Validate() error {
	def := Default()
	s := &cfg.Server
	if s.RunTimeout <= 0 {
		s.RunTimeout = def.Server.RunTimeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = def.Server.PollInterval
	}
	if s.IOTimeout <= 0 {
		s.IOTimeout = def.Server.IOTimeout
	}
	switch s.Backend {
	case "":
		s.Backend = BackendLocal
	case BackendLocal:
	case BackendDocker:
		if s.Docker.Image == "" {
			return fmt.Errorf("server.docker.image is required for the docker backend")
		}
	default:
		return fmt.Errorf("server.backend must be %q or %q, got %q", BackendLocal, BackendDocker, s.Backend)
	}
	if s.Docker.CPUs < 0 || s.Docker.MemoryMB < 0 {
		return fmt.Errorf("server.docker limits must not be negative")
	}

	c := &cfg.Client
	if c.ExecutionTimeMS < -1 {
		return fmt.Errorf("client.execution_time_ms must be -1 or a budget in ms, got %d", c.ExecutionTimeMS)
	}
	if c.RepeatCount < 1 {
		return fmt.Errorf("client.repeat_count must be at least 1")
	}
	if c.PeakPerformance <= 0 {
		return fmt.Errorf("client.peak_performance must be positive")
	}
	if c.Pace < 0 {
		return fmt.Errorf("client.pace must not be negative")
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.Client.DialTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = def.Client.IOTimeout
	}
	if c.ResultsDir == "" {
		c.ResultsDir = def.Client.ResultsDir
	}
	if _, err := c.SplitExtraArgs(); err != nil {
		return fmt.Errorf("client.extra_args: %w", err)
	}
	return nil
}

// SplitExtraArgs splits ExtraArgs with shell quoting rules.
func (c *Client) SplitExtraArgs() ([]string, error) {
	if c.ExtraArgs == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(c.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("splitting %q: %w", c.ExtraArgs, err)
	}
	return args, nil
}
