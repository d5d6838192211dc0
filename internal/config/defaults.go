package config

import "github.com/leapstack-labs/quill/pkg/loader"

// Default configuration values.
const (
	DefaultTemplatesDir = "templates"
	DefaultFunctionsDir = "functions"
	DefaultNamespace    = "q"
	DefaultCacheSize    = 512

	LocatorInline = "inline"
	LocatorMarkup = "markup"

	CacheMap  = "map"
	CacheLRU  = "lru"
	CacheNone = "none"
)

// Defaults returns the default settings as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"templates_dir": DefaultTemplatesDir,
		"functions_dir": DefaultFunctionsDir,
		"encoding":      loader.DefaultEncoding,
		"locator":       LocatorInline,
		"namespace":     DefaultNamespace,
		"reload":        true,
		"cache.kind":    CacheMap,
		"cache.size":    DefaultCacheSize,
	}
}

// ApplyDefaults fills unset fields of c.
func (c *EngineConfig) ApplyDefaults() {
	if c.TemplatesDir == "" {
		c.TemplatesDir = DefaultTemplatesDir
	}
	if c.FunctionsDir == "" {
		c.FunctionsDir = DefaultFunctionsDir
	}
	if c.Encoding == "" {
		c.Encoding = loader.DefaultEncoding
	}
	if c.Locator == "" {
		c.Locator = LocatorInline
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = CacheMap
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = DefaultCacheSize
	}
}
