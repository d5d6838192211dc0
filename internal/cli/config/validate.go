package config

import (
	"fmt"
	"os"
)

// Validate checks the engine settings and the output mode.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("output must be auto, text, markdown or json, got %q", c.OutputFormat)
	}
	if c.Server.MaxBody < 0 {
		return fmt.Errorf("server.max_body cannot be negative")
	}
	return c.EngineConfig.Validate()
}

// ValidateDirectories checks that the templates directory exists.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.TemplatesDir); os.IsNotExist(err) {
		return fmt.Errorf("templates directory does not exist: %s\nHint: Create the directory or use --templates-dir to specify a different path", c.TemplatesDir)
	}
	return nil
}
