package bootstrap

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/quill/internal/config"
	"github.com/leapstack-labs/quill/internal/testutil"
	"github.com/leapstack-labs/quill/pkg/engine"
	"github.com/leapstack-labs/quill/pkg/loader"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func render(t *testing.T, e *engine.Engine, name string, params map[string]any) string {
	t.Helper()
	tpl, err := e.GetTemplate(name)
	require.NoError(t, err)
	out, err := tpl.Render(params)
	require.NoError(t, err)
	return out
}

func TestOpen_AllSources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "templates", "page.html"), `#define(String who)${text.greet(who)}`)
	writeFile(t, filepath.Join(root, "functions", "text.star"), "def greet(n):\n    return constants[\"greeting\"] + \", \" + n\n")
	writeZip(t, filepath.Join(root, "bundle.zip"), map[string]string{"zipped.html": "from zip", "page.html": "shadowed"})

	dbPath := filepath.Join(root, "templates.db")
	sl, err := loader.OpenSQLLoader(loader.DriverSQLite, dbPath)
	require.NoError(t, err)
	require.NoError(t, sl.Migrate())
	require.NoError(t, sl.Put(context.Background(), "stored.html", "from db"))
	require.NoError(t, sl.Close())

	cfg := &config.EngineConfig{
		Archive:   "bundle.zip",
		Database:  &config.DatabaseConfig{Driver: "sqlite", DSN: "templates.db"},
		Constants: map[string]any{"greeting": "Hi"},
	}
	cfg.ApplyDefaults()
	cfg.ResolvePaths(root)

	p, err := Open(cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, p.Close()) }()

	assert.Equal(t, "Hi, Ann", render(t, p.Engine, "page.html", map[string]any{"who": "Ann"}))
	assert.Equal(t, "from zip", render(t, p.Engine, "zipped.html", nil))
	assert.Equal(t, "from db", render(t, p.Engine, "stored.html", nil))
	require.Len(t, p.Functions, 1)
	assert.Equal(t, "text.greet", p.Functions[0].QualifiedName())
	assert.NotNil(t, p.SQL)

	names, err := p.Engine.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"page.html", "stored.html", "zipped.html"}, names)
}

func TestOpen_NoSources(t *testing.T) {
	cfg := &config.EngineConfig{}
	cfg.ApplyDefaults()
	cfg.ResolvePaths(t.TempDir())

	p, err := Open(cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	p.Engine.AddTemplate("x", "literal")
	assert.Equal(t, "literal", render(t, p.Engine, "x", nil))
	_, err = p.Engine.GetTemplate("missing")
	assert.ErrorIs(t, err, loader.ErrNotFound)
}

func TestOpen_Markup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "templates", "list.html"), `<b foreach="i in 1..3">${i}</b><x:if test="true">${s}</x:if>`)
	cfg := &config.EngineConfig{
		Locator:   "markup",
		Namespace: "x",
		Filters:   []string{"html"},
		Variables: map[string]string{"s": "String"},
	}
	cfg.ApplyDefaults()
	cfg.ResolvePaths(root)

	p, err := Open(cfg, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "<b>1</b><b>2</b><b>3</b>&lt;", render(t, p.Engine, "list.html", map[string]any{"s": "<"}))
}

func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, root string, cfg *config.EngineConfig)
		wantErr string
	}{
		{
			name:    "bad locator",
			setup:   func(_ *testing.T, _ string, cfg *config.EngineConfig) { cfg.Locator = "jsx" },
			wantErr: "locator",
		},
		{
			name:    "bad filter",
			setup:   func(_ *testing.T, _ string, cfg *config.EngineConfig) { cfg.Filters = []string{"rot13"} },
			wantErr: "filters",
		},
		{
			name: "templates path is a file",
			setup: func(t *testing.T, root string, cfg *config.EngineConfig) {
				writeFile(t, filepath.Join(root, "templates"), "x")
			},
			wantErr: "not a directory",
		},
		{
			name: "missing archive",
			setup: func(_ *testing.T, root string, cfg *config.EngineConfig) {
				cfg.Archive = filepath.Join(root, "none.zip")
			},
			wantErr: "open archive",
		},
		{
			name: "broken function file",
			setup: func(t *testing.T, root string, _ *config.EngineConfig) {
				writeFile(t, filepath.Join(root, "functions", "bad.star"), "def (")
			},
			wantErr: "load functions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			cfg := &config.EngineConfig{}
			cfg.ApplyDefaults()
			cfg.ResolvePaths(root)
			tt.setup(t, root, cfg)

			_, err := Open(cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewCache(t *testing.T) {
	assert.IsType(t, &engine.MapCache{}, NewCache(config.CacheConfig{}))
	assert.IsType(t, &engine.LRUCache{}, NewCache(config.CacheConfig{Kind: config.CacheLRU, Size: 4}))
	assert.IsType(t, engine.NopCache{}, NewCache(config.CacheConfig{Kind: config.CacheNone}))
}

func TestProject_ReloadFunctions(t *testing.T) {
	root := t.TempDir()
	star := filepath.Join(root, "functions", "text.star")
	writeFile(t, star, "def tag(s):\n    return \"[\" + s + \"]\"\n")
	cfg := &config.EngineConfig{}
	cfg.ApplyDefaults()
	cfg.ResolvePaths(root)

	p, err := Open(cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer p.Close()
	p.Engine.AddTemplate("t", `${text.tag("a")}`)
	assert.Equal(t, "[a]", render(t, p.Engine, "t", nil))

	writeFile(t, star, "def tag(s):\n    return \"<\" + s + \">\"\n")
	require.NoError(t, p.ReloadFunctions(nil))
	assert.Equal(t, "<a>", render(t, p.Engine, "t", nil))

	writeFile(t, star, "def tag(s):\n    return (\n")
	require.Error(t, p.ReloadFunctions(nil))
	assert.Equal(t, "<a>", render(t, p.Engine, "t", nil), "a failed reload keeps the old functions")
}

func TestProject_Watcher(t *testing.T) {
	root := t.TempDir()
	page := filepath.Join(root, "templates", "page.html")
	writeFile(t, page, "one")
	cfg := &config.EngineConfig{}
	cfg.ApplyDefaults()
	cfg.ResolvePaths(root)

	p, err := Open(cfg, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "one", render(t, p.Engine, "page.html", nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	changed := make(chan string, 8)
	w := p.Watcher(testutil.NewTestLogger(t), func(name string) { changed <- name })
	go func() { _ = w.Run(ctx, ready) }()
	<-ready

	// Reload is on by default, but the watcher also covers reload: false.
	p.Engine.SetReloadable(false)
	assert.Equal(t, "one", render(t, p.Engine, "page.html", nil))
	writeFile(t, page, "two")
	assert.Eventually(t, func() bool {
		tpl, err := p.Engine.GetTemplate("page.html")
		if err != nil {
			return false
		}
		out, _ := tpl.Render(nil)
		return out == "two"
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case name := <-changed:
		assert.Equal(t, "page.html", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}
