// Package config loads sudokud settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/cyberinferno/sudokunet/sudoku"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "SUDOKUD_CONFIG"

// DefaultPort is the fixed listening port.
const DefaultPort = 7777

var ErrInvalid = errors.New("invalid config")

type Server struct {
	Port         int           `yaml:"port"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Name         string        `yaml:"name"`
}

type Puzzle struct {
	Removals int `yaml:"removals"`
}

type Lobby struct {
	ListingTTL time.Duration `yaml:"listing_ttl"`
}

type Log struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Results configures the finished-game feed. An empty RedisAddr disables it.
type Results struct {
	RedisAddr string        `yaml:"redis_addr"`
	Key       string        `yaml:"key"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Config struct {
	Server  Server  `yaml:"server"`
	Puzzle  Puzzle  `yaml:"puzzle"`
	Lobby   Lobby   `yaml:"lobby"`
	Log     Log     `yaml:"log"`
	Results Results `yaml:"results"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: Server{
			Port:         DefaultPort,
			WriteTimeout: 10 * time.Second,
			Name:         "sudokud",
		},
		Puzzle: Puzzle{Removals: 30},
		Lobby:  Lobby{ListingTTL: 30 * time.Second},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Results: Results{
			Key:     "sudokunet:results",
			Timeout: 2 * time.Second,
		},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// Default(); a file that fails to parse or validate is an error.
//
// Parameters:
//   - path: YAML file path, usually os.Getenv(EnvPath)
//
// Returns:
//   - The merged configuration
//   - An error wrapping ErrInvalid, or the parse/read error
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate rejects out-of-range values.
func (c Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d", ErrInvalid, c.Server.Port)
	case c.Server.WriteTimeout <= 0:
		return fmt.Errorf("%w: server.write_timeout must be positive", ErrInvalid)
	case c.Puzzle.Removals < 1 || c.Puzzle.Removals > sudoku.MaxRemovals:
		return fmt.Errorf("%w: puzzle.removals %d not in 1..%d", ErrInvalid, c.Puzzle.Removals, sudoku.MaxRemovals)
	case c.Lobby.ListingTTL <= 0:
		return fmt.Errorf("%w: lobby.listing_ttl must be positive", ErrInvalid)
	case c.Results.RedisAddr != "" && c.Results.Key == "":
		return fmt.Errorf("%w: results.key is required with results.redis_addr", ErrInvalid)
	case c.Results.Timeout <= 0:
		return fmt.Errorf("%w: results.timeout must be positive", ErrInvalid)
	}

	return nil
}
