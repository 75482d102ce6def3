// Package config resolves runtime settings from a YAML file, a .env file and
// the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/cropnet/internal/constraints"
)

// #region config
// Config holds every tunable the CLI reads.
type Config struct {
	DBPath       string        `yaml:"db"`
	EngineAddr   string        `yaml:"engine_addr"`
	Workers      int           `yaml:"workers"`
	Buckets      int           `yaml:"buckets"`
	Markers      []string      `yaml:"atmospheric_markers"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	Target       string        `yaml:"target"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DBPath:       "cropnet.db",
		EngineAddr:   "localhost:50051",
		Workers:      defaultWorkers(),
		Buckets:      3,
		Markers:      append([]string(nil), constraints.DefaultAtmosphericMarkers...),
		QueryTimeout: 60 * time.Second,
		Target:       "yield",
	}
}

func defaultWorkers() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

// #endregion config

// #region load
// Load builds a Config from defaults, then path (if it exists), then a .env
// file in the working directory, then the environment. An empty path skips
// the YAML step.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DBPath = envOr("CROPNET_DB", c.DBPath)
	c.EngineAddr = envOr("ENGINE_ADDR", c.EngineAddr)
	c.Target = envOr("CROPNET_TARGET", c.Target)

	if v := os.Getenv("ENGINE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ENGINE_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("CROPNET_BUCKETS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CROPNET_BUCKETS: %w", err)
		}
		c.Buckets = n
	}
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("QUERY_TIMEOUT: %w", err)
		}
		c.QueryTimeout = d
	}
	if v := os.Getenv("CROPNET_MARKERS"); v != "" {
		c.Markers = splitList(v)
	}
	return nil
}

// #endregion load

// #region validate
// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("config: db path is empty")
	case c.EngineAddr == "":
		return errors.New("config: engine address is empty")
	case c.Workers < 1:
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	case c.Buckets < 2:
		return fmt.Errorf("config: buckets must be >= 2, got %d", c.Buckets)
	case c.QueryTimeout <= 0:
		return fmt.Errorf("config: query timeout must be positive, got %s", c.QueryTimeout)
	}
	return nil
}

// #endregion validate

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// #endregion helpers
