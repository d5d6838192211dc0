// Package config loads the CLI configuration.
//
// The engine settings live in internal/config and are embedded here
// together with the CLI-only settings for output and the render server.
package config

import (
	"time"

	intconfig "github.com/leapstack-labs/quill/internal/config"
)

// ServerConfig holds settings for `quill serve`.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	Watch           bool          `koanf:"watch"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxBody bounds JSON request bodies, in bytes.
	MaxBody int64 `koanf:"max_body"`
}

// Config holds all CLI configuration options.
type Config struct {
	intconfig.EngineConfig `koanf:",squash"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot  string       `koanf:"-"`
	Verbose      bool         `koanf:"verbose"`
	OutputFormat string       `koanf:"output"`
	Server       ServerConfig `koanf:"server"`
}

// Default CLI values.
const (
	DefaultOutput          = "auto" // TTY=text, otherwise markdown
	DefaultAddr            = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMaxBody         = 1 << 20
)

// Default returns the configuration used when nothing is loaded.
func Default() *Config {
	cfg := &Config{
		OutputFormat: DefaultOutput,
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxBody:         DefaultMaxBody,
		},
	}
	cfg.ApplyDefaults()
	cfg.Reload = true
	return cfg
}
