// Package config loads stepcheck run configuration from CUE.
//
// A configuration file is plain CUE data checked against an embedded
// schema, for example:
//
//	mode:          "resync"
//	resync_window: 16
//	database:      "runs.db"
//
// Unknown fields are rejected. Omitted fields take schema defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/stepcheck/internal/trace"
)

//go:embed schema.cue
var schemaCUE string

// ErrInvalidConfig is returned for configuration that fails the schema.
var ErrInvalidConfig = errors.New("invalid config")

// Config is a validated run configuration.
type Config struct {
	Steps        int    `json:"steps,omitempty"`
	Mode         string `json:"mode"`
	ResyncWindow int    `json:"resync_window"`
	Fixture      string `json:"fixture,omitempty"`
	Database     string `json:"database,omitempty"`
	LogLevel     string `json:"log_level"`
}

// Default returns the schema defaults.
func Default() *Config {
	cfg, err := Parse(nil, "default.cue")
	if err != nil {
		panic(fmt.Sprintf("config schema: %v", err))
	}
	return cfg
}

// Load reads and validates a CUE configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source against the schema. filename is used only in
// error positions.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	return &cfg, nil
}

// TraceMode returns the configured write-trace mode.
func (c *Config) TraceMode() (trace.Mode, error) {
	return trace.ParseMode(c.Mode)
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// formatCUEError reports the first CUE error with its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	for _, pos := range positions {
		if pos.IsValid() && pos.Filename() != "schema.cue" {
			return fmt.Errorf("%w: %s:%d:%d: %v",
				ErrInvalidConfig, pos.Filename(), pos.Line(), pos.Column(), first)
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, first)
}
