package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "quill.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "quill.yml"

// DecodeHook converts duration strings and comma-separated lists while
// unmarshalling.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Unmarshal decodes the koanf tree at path into out with DecodeHook.
func Unmarshal(k *koanf.Koanf, path string, out any) error {
	return k.UnmarshalWithConf(path, out, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       DecodeHook(),
			Result:           out,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	})
}

// LoadFromDir loads the engine configuration of the project in dir.
// Returns nil, nil if no config file is found.
func LoadFromDir(dir string) (*EngineConfig, error) {
	configPath := FindConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, err
	}

	var cfg EngineConfig
	if err := Unmarshal(k, "", &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	cfg.ResolvePaths(dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolvePaths makes the relative paths of c relative to root.
func (c *EngineConfig) ResolvePaths(root string) {
	c.TemplatesDir = ResolvePath(c.TemplatesDir, root)
	c.FunctionsDir = ResolvePath(c.FunctionsDir, root)
	c.Archive = ResolvePath(c.Archive, root)
	if c.Database != nil && c.Database.Driver == "sqlite" && !strings.HasPrefix(c.Database.DSN, "file:") && c.Database.DSN != ":memory:" {
		c.Database.DSN = ResolvePath(c.Database.DSN, root)
	}
}

// ResolvePath joins path to root unless it is empty or absolute.
func ResolvePath(path, root string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// FindConfigFile returns the config file in dir, or "".
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the first directory holding a
// config file. Returns "" if there is none.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if FindConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
