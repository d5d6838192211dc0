// Package config holds the project configuration shared by the CLI, the
// render server and the watcher. It is decoupled from CLI concerns so any
// tool that needs a configured engine can load quill.yaml directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/quill/pkg/types"
)

// CacheConfig selects the template cache.
type CacheConfig struct {
	// Kind is "map", "lru" or "none".
	Kind string        `koanf:"kind"`
	Size int           `koanf:"size"`
	TTL  time.Duration `koanf:"ttl"`
}

// DatabaseConfig points the SQL loader at a templates table.
type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// StarlarkConfig bounds calls into function files.
type StarlarkConfig struct {
	MaxSteps uint64 `koanf:"max_steps"`
	PoolSize int    `koanf:"pool_size"`
}

// EngineConfig is the engine part of quill.yaml.
type EngineConfig struct {
	TemplatesDir string `koanf:"templates_dir"`
	// Suffixes limits which files under TemplatesDir are templates.
	Suffixes []string `koanf:"suffixes"`
	// Archive is a zip of templates consulted after TemplatesDir.
	Archive      string          `koanf:"archive"`
	Database     *DatabaseConfig `koanf:"database"`
	FunctionsDir string          `koanf:"functions_dir"`
	Encoding     string          `koanf:"encoding"`
	// Locator is "inline" or "markup".
	Locator   string `koanf:"locator"`
	Namespace string `koanf:"namespace"`
	Reload    bool   `koanf:"reload"`
	// Filters are applied to interpolated values, in order.
	Filters     []string          `koanf:"filters"`
	TextFilters []string          `koanf:"text_filters"`
	Locale      string            `koanf:"locale"`
	TimeLayout  string            `koanf:"time_layout"`
	StatusName  string            `koanf:"status_name"`
	Variables   map[string]string `koanf:"variables"`
	Constants   map[string]any    `koanf:"constants"`
	Sequences   [][]string        `koanf:"sequences"`
	Cache       CacheConfig       `koanf:"cache"`
	Starlark    StarlarkConfig    `koanf:"starlark"`
}

// Validate checks the enumerated settings and the variable types.
func (c *EngineConfig) Validate() error {
	switch strings.ToLower(c.Locator) {
	case "", LocatorInline, LocatorMarkup:
	default:
		return fmt.Errorf("locator must be %q or %q, got %q", LocatorInline, LocatorMarkup, c.Locator)
	}
	switch strings.ToLower(c.Cache.Kind) {
	case "", CacheMap, CacheLRU, CacheNone:
	default:
		return fmt.Errorf("cache.kind must be one of map, lru, none; got %q", c.Cache.Kind)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size cannot be negative")
	}
	if c.Database != nil {
		switch c.Database.Driver {
		case "sqlite", "pgx":
		default:
			return fmt.Errorf("database.driver must be sqlite or pgx, got %q", c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	}
	if _, err := c.VariableTypes(); err != nil {
		return err
	}
	return nil
}

// VariableTypes parses the declared global variables.
func (c *EngineConfig) VariableTypes() (map[string]*types.Type, error) {
	if len(c.Variables) == 0 {
		return nil, nil
	}
	vars := make(map[string]*types.Type, len(c.Variables))
	for name, decl := range c.Variables {
		t, err := types.Parse(decl)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		vars[name] = t
	}
	return vars, nil
}
