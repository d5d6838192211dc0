package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/quill/pkg/types"
)

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	content := `
templates_dir: views
locator: markup
suffixes: .html,.txt
filters: [html]
cache:
  kind: lru
  size: 16
  ttl: 90s
variables:
  site: String
  tags: List<String>
database:
  driver: sqlite
  dsn: data/templates.db
starlark:
  max_steps: 5000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, filepath.Join(dir, "views"), cfg.TemplatesDir)
	assert.Equal(t, filepath.Join(dir, DefaultFunctionsDir), cfg.FunctionsDir)
	assert.Equal(t, LocatorMarkup, cfg.Locator)
	assert.Equal(t, []string{".html", ".txt"}, cfg.Suffixes)
	assert.Equal(t, []string{"html"}, cfg.Filters)
	assert.Equal(t, CacheConfig{Kind: CacheLRU, Size: 16, TTL: 90 * time.Second}, cfg.Cache)
	assert.Equal(t, filepath.Join(dir, "data/templates.db"), cfg.Database.DSN)
	assert.Equal(t, uint64(5000), cfg.Starlark.MaxSteps)
	assert.Equal(t, DefaultNamespace, cfg.Namespace)

	vars, err := cfg.VariableTypes()
	require.NoError(t, err)
	assert.True(t, types.Equal(types.ListOf(types.String), vars["tags"]))
}

func TestLoadFromDir_NoFile(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestEngineConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EngineConfig
		wantErr string
	}{
		{name: "defaults", cfg: EngineConfig{}},
		{name: "bad locator", cfg: EngineConfig{Locator: "jsx"}, wantErr: "locator"},
		{name: "bad cache", cfg: EngineConfig{Cache: CacheConfig{Kind: "redis"}}, wantErr: "cache.kind"},
		{name: "negative size", cfg: EngineConfig{Cache: CacheConfig{Size: -1}}, wantErr: "cache.size"},
		{name: "bad driver", cfg: EngineConfig{Database: &DatabaseConfig{Driver: "mysql", DSN: "x"}}, wantErr: "database.driver"},
		{name: "missing dsn", cfg: EngineConfig{Database: &DatabaseConfig{Driver: "pgx"}}, wantErr: "database.dsn"},
		{name: "bad variable", cfg: EngineConfig{Variables: map[string]string{"x": "List<"}}, wantErr: "variable x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileNameAlt), []byte("reload: false\n"), 0o644))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, filepath.Join(root, ConfigFileNameAlt), FindConfigFile(root))
	assert.Equal(t, "", FindConfigFile(nested))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "", ResolvePath("", "/root"))
	assert.Equal(t, "/abs", ResolvePath("/abs", "/root"))
	assert.Equal(t, filepath.Join("/root", "rel"), ResolvePath("rel", "/root"))
}
