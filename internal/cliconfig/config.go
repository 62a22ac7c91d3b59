// Package cliconfig loads the JSONC deployment config shared by the bldms
// CLIs, the file-based equivalent of build-time tuning knobs: block-count
// bound, synchronous writeback, and audit tracing.
package cliconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tailscale/hujson"

	"bldms.dev/bldms/pkg/bldms"
)

// Config mirrors the subset of bldms.Options a deployment can set from a
// config file.
type Config struct {
	MaxBlocks int    `json:"max_blocks,omitempty"`
	Writeback string `json:"writeback,omitempty"` // "none" (default) or "sync"
	Audit     bool   `json:"audit,omitempty"`
}

// Load reads a JSONC config file. An empty path returns the zero Config,
// not an error.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	return cfg, nil
}

// EngineOptions converts the file values into bldms.Options. Audit tracing,
// when enabled, goes to stderr at debug level.
func (c Config) EngineOptions() (bldms.Options, error) {
	opts := bldms.Options{MaxBlocks: c.MaxBlocks}

	switch c.Writeback {
	case "", "none":
		opts.Writeback = bldms.WritebackNone
	case "sync":
		opts.Writeback = bldms.WritebackSync
	default:
		return bldms.Options{}, fmt.Errorf("unknown writeback mode %q (want \"none\" or \"sync\")", c.Writeback)
	}

	if c.Audit {
		opts.Audit = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	return opts, nil
}
